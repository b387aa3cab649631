package linkkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEpisode(t *testing.T) {
	tests := []struct {
		title   string
		season  int
		episode int
	}{
		{"Show.S02E05.1080p.WEB-DL", 2, 5},
		{"Show.s02e05.mkv", 2, 5},
		{"Show S02 E05", 2, 5},
		{"Show.EP12.1080p", 1, 12},
		{"Show E7 update", 1, 7},
		{"某剧 第3集 1080P", 1, 3},
		{"某剧 第１２集", 1, 12}, // 全角数字
		{"Some.Movie.2023.1080p", 0, 0},
		{"", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			season, episode := ParseEpisode(tt.title)
			assert.Equal(t, tt.season, season)
			assert.Equal(t, tt.episode, episode)
		})
	}
}

func TestParseEpisodePrecedence(t *testing.T) {
	// SxxEyy 同时存在时优先于其他写法
	season, episode := ParseEpisode("Show.S03E08 第1集")
	assert.Equal(t, 3, season)
	assert.Equal(t, 8, episode)
}
