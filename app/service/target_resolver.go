package service

import (
	"link-porter/app/model"
)

// TargetResolver 根据链接类型解析可用的执行器，纯函数无副作用。
// 返回空列表时调用方按不支持的链接类型处理；
// 只有一个候选时直接分派；多个候选时需要用户明确选择
type TargetResolver struct {
	shareSaveOptions []ExecutorOption
	offlineOptions   []ExecutorOption
}

// NewTargetResolver 创建解析器
func NewTargetResolver(shareSave, offline []ExecutorOption) *TargetResolver {
	return &TargetResolver{
		shareSaveOptions: shareSave,
		offlineOptions:   offline,
	}
}

// Resolve 返回能处理该链接的执行器列表
func (r *TargetResolver) Resolve(link model.Link) []ExecutorOption {
	switch {
	case link.IsShare():
		return append([]ExecutorOption(nil), r.shareSaveOptions...)
	case link.IsDownloadable():
		return append([]ExecutorOption(nil), r.offlineOptions...)
	}
	return nil
}
