package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"link-porter/app/config"
	"link-porter/app/logger"
)

const moviePilotTokenSkew = 2 * time.Minute

// MoviePilotService MoviePilot 客户端，提供媒体识别、改名和站点搜索。
// 访问令牌按需登录获取，过期前自动续期
type MoviePilotService struct {
	logger *logger.Logger
	cfg    *config.Config
	client *http.Client

	mu             sync.RWMutex
	accessToken    string
	tokenExpiresAt time.Time
}

// NewMoviePilotService 创建 MoviePilot 客户端
func NewMoviePilotService(cfg *config.Config, log *logger.Logger) *MoviePilotService {
	return &MoviePilotService{
		logger: log,
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured 是否已配置 MoviePilot
func (s *MoviePilotService) IsConfigured() bool {
	return strings.TrimSpace(s.cfg.MoviePilot.API) != "" &&
		strings.TrimSpace(s.cfg.MoviePilot.Username) != "" &&
		strings.TrimSpace(s.cfg.MoviePilot.Password) != ""
}

func (s *MoviePilotService) baseURL() string {
	return strings.TrimRight(strings.TrimSpace(s.cfg.MoviePilot.API), "/")
}

// GetAccessToken 返回有效令牌，必要时重新登录
func (s *MoviePilotService) GetAccessToken() (string, error) {
	if !s.IsConfigured() {
		return "", errors.New("moviepilot 未配置")
	}

	s.mu.RLock()
	token := s.accessToken
	expiresAt := s.tokenExpiresAt
	s.mu.RUnlock()

	if token != "" && time.Now().Before(expiresAt.Add(-moviePilotTokenSkew)) {
		return token, nil
	}
	return s.refreshToken()
}

func (s *MoviePilotService) refreshToken() (string, error) {
	loginURL := s.baseURL() + "/api/v1/login/access-token"
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", s.cfg.MoviePilot.Username)
	form.Set("password", s.cfg.MoviePilot.Password)

	req, err := http.NewRequest("POST", loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("创建 MoviePilot 登录请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求 MoviePilot 登录失败: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("MoviePilot 登录失败: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var login struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &login); err != nil || login.AccessToken == "" {
		return "", errors.New("MoviePilot 登录未返回 access_token")
	}

	expireAt := time.Now().Add(1 * time.Hour)
	if login.ExpiresIn > 0 {
		expireAt = time.Now().Add(time.Duration(login.ExpiresIn) * time.Second)
	}

	s.mu.Lock()
	s.accessToken = login.AccessToken
	s.tokenExpiresAt = expireAt
	s.mu.Unlock()

	return login.AccessToken, nil
}

func (s *MoviePilotService) doGet(endpointPath string, query url.Values) ([]byte, error) {
	token, err := s.GetAccessToken()
	if err != nil {
		return nil, err
	}

	endpoint := s.baseURL() + endpointPath
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		if _, refreshErr := s.refreshToken(); refreshErr == nil {
			return s.doGet(endpointPath, query)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MoviePilot 请求失败: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// MediaRecognition 识别结果
type MediaRecognition struct {
	MediaType string `json:"media_type"`
	Title     string `json:"title"`
	Year      string `json:"year"`
	TitleYear string `json:"title_year"`
	TmdbID    string `json:"tmdb_id"`
	Season    int    `json:"season"`
	HasSeason bool   `json:"has_season"`
	Raw       string `json:"-"` // 原始响应 JSON
}

// RecognizeFile 按文件路径识别媒体信息
func (s *MoviePilotService) RecognizeFile(filePath string) (MediaRecognition, error) {
	values := url.Values{}
	values.Set("path", filePath)

	body, err := s.doGet("/api/v1/media/recognize_file", values)
	if err != nil {
		return MediaRecognition{}, err
	}

	data := unwrapDataMap(body)
	info := MediaRecognition{
		MediaType: strings.ToLower(extractString(data, "media_type", "type")),
		Title:     extractString(data, "title", "name"),
		Year:      extractString(data, "year", "release_year"),
		TitleYear: extractString(data, "title_year"),
		TmdbID:    extractString(data, "tmdb_id", "tmdbId"),
		Raw:       string(body),
	}
	if season := extractInt64(data, "begin_season", "beginSeason"); season > 0 {
		info.Season = int(season)
		info.HasSeason = true
	}
	return info, nil
}

// TransferName 获取整理后的标准文件名
func (s *MoviePilotService) TransferName(filePath string) (string, error) {
	values := url.Values{}
	values.Set("path", filePath)

	body, err := s.doGet("/api/v1/transfer/name", values)
	if err != nil {
		return "", err
	}

	data := unwrapDataMap(body)
	return extractString(data, "name", "new_name", "file_name", "filename", "title"), nil
}

// SearchTitle 按关键字搜索站点资源
func (s *MoviePilotService) SearchTitle(keyword string) ([]SearchResult, error) {
	values := url.Values{}
	values.Set("keyword", keyword)

	body, err := s.doGet("/api/v1/search/title", values)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Data []struct {
			TorrentInfo struct {
				Title     string `json:"title"`
				Enclosure string `json:"enclosure"`
				Site      string `json:"site_name"`
			} `json:"torrent_info"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("解析 MoviePilot 搜索结果失败: %w", err)
	}

	results := make([]SearchResult, 0, len(wrapper.Data))
	for _, item := range wrapper.Data {
		if item.TorrentInfo.Enclosure == "" {
			continue
		}
		results = append(results, SearchResult{
			Title:       item.TorrentInfo.Title,
			ResourceURL: item.TorrentInfo.Enclosure,
			Provider:    item.TorrentInfo.Site,
		})
	}
	return results, nil
}

func unwrapDataMap(body []byte) map[string]any {
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return map[string]any{}
	}
	if data, ok := root["data"]; ok {
		if dataMap, ok := data.(map[string]any); ok {
			return dataMap
		}
	}
	// 识别结果常嵌在 media_info 里
	if data, ok := root["media_info"]; ok {
		if dataMap, ok := data.(map[string]any); ok {
			return dataMap
		}
	}
	return root
}

func extractString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			switch typed := val.(type) {
			case string:
				return typed
			case float64:
				if typed == float64(int64(typed)) {
					return strconv.FormatInt(int64(typed), 10)
				}
				return fmt.Sprintf("%v", typed)
			}
		}
	}
	return ""
}

func extractInt64(data map[string]any, keys ...string) int64 {
	for _, key := range keys {
		if val, ok := data[key]; ok {
			switch typed := val.(type) {
			case float64:
				return int64(typed)
			case string:
				if n, err := strconv.ParseInt(typed, 10, 64); err == nil {
					return n
				}
			}
		}
	}
	return 0
}
