package linkkit

import (
	"regexp"
	"strconv"

	"golang.org/x/text/width"
)

// 标题中季集信息的识别优先级：SxxEyy > Eyy/EPyy > 第N集。
// 资源站标题里经常混用全角数字，先统一转成半角再匹配
var (
	seasonEpisodePattern = regexp.MustCompile(`(?i)S(\d{1,2})\s*E(\d{1,3})`)
	episodeOnlyPattern   = regexp.MustCompile(`(?i)\bEP?(\d{1,3})\b`)
	chineseEpPattern     = regexp.MustCompile(`第(\d{1,4})集`)
)

// ParseEpisode 从资源标题解析季和集。解析不出时返回 (0, 0)，
// 指定集订阅会据此排除该资源
func ParseEpisode(title string) (season, episode int) {
	title = width.Narrow.String(title)

	if m := seasonEpisodePattern.FindStringSubmatch(title); m != nil {
		season, _ = strconv.Atoi(m[1])
		episode, _ = strconv.Atoi(m[2])
		return season, episode
	}

	if m := episodeOnlyPattern.FindStringSubmatch(title); m != nil {
		episode, _ = strconv.Atoi(m[1])
		return 1, episode
	}

	if m := chineseEpPattern.FindStringSubmatch(title); m != nil {
		episode, _ = strconv.Atoi(m[1])
		return 1, episode
	}

	return 0, 0
}
