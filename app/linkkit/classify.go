package linkkit

import (
	"regexp"
	"strings"

	"link-porter/app/model"
)

// 链接识别规则。115 分享链接支持老域名和 cdn 域名，访问码可以在 URL 参数里，
// 也可以用中文说明跟在链接后面
var (
	magnetPattern    = regexp.MustCompile(`(?i)magnet:\?xt=urn:btih:[0-9a-fA-F]{32,40}[^\s]*`)
	ed2kPattern      = regexp.MustCompile(`(?i)ed2k://\|file\|[^|]+\|\d+\|[0-9a-fA-F]{32}\|/?`)
	share115Pattern  = regexp.MustCompile(`https?://(?:115|115cdn|anxia)\.com/s/([0-9a-zA-Z]+)`)
	accessCodeParam  = regexp.MustCompile(`[?&]password=([0-9a-zA-Z]+)`)
	accessCodeInline = regexp.MustCompile(`访问码[：:\s]*([0-9a-zA-Z]{4})`)
	httpPattern      = regexp.MustCompile(`(?i)https?://[^\s]+`)
)

// Classifier 从用户提交的原始文本中识别链接
type Classifier struct{}

// NewClassifier 创建链接分类器
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify 识别文本中的第一个可处理链接，识别不出时返回 unknown
func (c *Classifier) Classify(text string) model.Link {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Link{Kind: model.LinkKindUnknown}
	}

	if m := magnetPattern.FindString(text); m != "" {
		return model.Link{Kind: model.LinkKindMagnet, URL: m}
	}

	if m := ed2kPattern.FindString(text); m != "" {
		return model.Link{Kind: model.LinkKindEd2k, URL: m}
	}

	if m := share115Pattern.FindStringSubmatch(text); m != nil {
		link := model.Link{
			Kind:      model.LinkKindShare115,
			ShareCode: m[1],
			URL:       m[0],
		}
		if code := accessCodeParam.FindStringSubmatch(text); code != nil {
			link.AccessCode = code[1]
		} else if code := accessCodeInline.FindStringSubmatch(text); code != nil {
			link.AccessCode = code[1]
		}
		return link
	}

	if m := httpPattern.FindString(text); m != "" {
		return model.Link{Kind: model.LinkKindHTTP, URL: m}
	}

	return model.Link{Kind: model.LinkKindUnknown}
}
