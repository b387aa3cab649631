package pan115

import (
	"fmt"
	"strings"

	"link-porter/app/logger"

	driver "github.com/SheltonZhu/115driver/pkg/driver"
)

// Client 115 网页端客户端封装，负责分享转存和离线下载两类操作
type Client struct {
	logger *logger.Logger
	pan    *driver.Pan115Client
}

// New 使用 Cookie 创建客户端并校验有效性
func New(cookie string, log *logger.Logger) (*Client, error) {
	cred, err := parseCredential(cookie)
	if err != nil {
		return nil, err
	}

	pan := driver.New(driver.UA(driver.UA115Browser))
	pan.ImportCredential(cred)

	if err := pan.CookieCheck(); err != nil {
		return nil, fmt.Errorf("115 Cookie 无效: %w", err)
	}

	return &Client{logger: log, pan: pan}, nil
}

// Pan 返回底层客户端
func (c *Client) Pan() *driver.Pan115Client {
	return c.pan
}

func parseCredential(cookie string) (*driver.Credential, error) {
	cookie = normalizeCookie(cookie)
	if cookie == "" {
		return nil, fmt.Errorf("115 Cookie 为空")
	}

	cred := &driver.Credential{}
	if err := cred.FromCookie(cookie); err == nil {
		return cred, nil
	}

	// 兼容手工粘贴的 "UID=...; CID=...; SEID=..." 形式
	values := make(map[string]string)
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair := strings.SplitN(part, "=", 2)
		if len(pair) != 2 {
			continue
		}
		values[strings.ToUpper(strings.TrimSpace(pair[0]))] = strings.TrimSpace(pair[1])
	}

	cred.UID = values["UID"]
	cred.CID = values["CID"]
	cred.SEID = values["SEID"]
	cred.KID = values["KID"]

	if cred.UID == "" || cred.CID == "" || cred.SEID == "" {
		return nil, fmt.Errorf("解析 115 Cookie 失败，缺少 UID/CID/SEID")
	}
	return cred, nil
}

func normalizeCookie(cookie string) string {
	cookie = strings.TrimSpace(cookie)
	if strings.HasPrefix(strings.ToLower(cookie), "cookie:") {
		return strings.TrimSpace(cookie[len("cookie:"):])
	}
	return cookie
}
