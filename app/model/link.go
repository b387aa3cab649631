package model

// LinkKind 链接类型
type LinkKind string

const (
	LinkKindMagnet   LinkKind = "magnet"   // 磁力链接
	LinkKindEd2k     LinkKind = "ed2k"     // 电驴链接
	LinkKindHTTP     LinkKind = "http"     // 普通 HTTP/HTTPS 直链
	LinkKindShare115 LinkKind = "share115" // 115 分享链接
	LinkKindUnknown  LinkKind = "unknown"  // 无法识别
)

// Link 分类后的链接值对象，创建后不再修改
type Link struct {
	Kind       LinkKind `json:"kind" gorm:"size:20"`
	ShareCode  string   `json:"share_code,omitempty" gorm:"size:100"`
	AccessCode string   `json:"access_code,omitempty" gorm:"size:50"`
	URL        string   `json:"url,omitempty" gorm:"type:text"`
}

// IsDownloadable 是否可以交给离线下载
func (l Link) IsDownloadable() bool {
	switch l.Kind {
	case LinkKindMagnet, LinkKindEd2k, LinkKindHTTP:
		return true
	}
	return false
}

// IsShare 是否为网盘分享链接
func (l Link) IsShare() bool {
	return l.Kind == LinkKindShare115
}
