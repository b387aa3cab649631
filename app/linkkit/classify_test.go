package linkkit

import (
	"testing"

	"link-porter/app/model"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMagnet(t *testing.T) {
	c := NewClassifier()

	link := c.Classify("帮我下载这个 magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a&dn=movie")
	assert.Equal(t, model.LinkKindMagnet, link.Kind)
	assert.Contains(t, link.URL, "magnet:?xt=urn:btih:")
}

func TestClassifyEd2k(t *testing.T) {
	c := NewClassifier()

	link := c.Classify("ed2k://|file|Some.Movie.2023.mkv|1234567890|0123456789ABCDEF0123456789ABCDEF|/")
	assert.Equal(t, model.LinkKindEd2k, link.Kind)
}

func TestClassifyShare115(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name       string
		text       string
		shareCode  string
		accessCode string
	}{
		{
			name:       "带password参数",
			text:       "https://115.com/s/sw1abc123?password=a1b2",
			shareCode:  "sw1abc123",
			accessCode: "a1b2",
		},
		{
			name:       "cdn域名带中文访问码",
			text:       "https://115cdn.com/s/sw1abc123 访问码：x9y8",
			shareCode:  "sw1abc123",
			accessCode: "x9y8",
		},
		{
			name:      "无访问码",
			text:      "https://anxia.com/s/sw1abc123",
			shareCode: "sw1abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := c.Classify(tt.text)
			assert.Equal(t, model.LinkKindShare115, link.Kind)
			assert.Equal(t, tt.shareCode, link.ShareCode)
			assert.Equal(t, tt.accessCode, link.AccessCode)
		})
	}
}

func TestClassifyHTTP(t *testing.T) {
	c := NewClassifier()

	link := c.Classify("https://example.com/download/movie.mkv")
	assert.Equal(t, model.LinkKindHTTP, link.Kind)
	assert.Equal(t, "https://example.com/download/movie.mkv", link.URL)
}

func TestClassifyUnknown(t *testing.T) {
	c := NewClassifier()

	assert.Equal(t, model.LinkKindUnknown, c.Classify("").Kind)
	assert.Equal(t, model.LinkKindUnknown, c.Classify("随便一段文字，没有链接").Kind)
}

func TestClassifyMagnetBeforeShare(t *testing.T) {
	c := NewClassifier()

	// 磁力链接优先于同一段文本里的其他链接
	link := c.Classify("magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a https://115.com/s/sw1abc123")
	assert.Equal(t, model.LinkKindMagnet, link.Kind)
}
