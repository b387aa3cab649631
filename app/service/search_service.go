package service

import (
	"context"

	"link-porter/app/logger"
)

// MoviePilotSearch 基于 MoviePilot 站点聚合搜索的资源索引
type MoviePilotSearch struct {
	logger *logger.Logger
	mp     *MoviePilotService
}

// NewMoviePilotSearch 创建搜索索引
func NewMoviePilotSearch(mp *MoviePilotService, log *logger.Logger) *MoviePilotSearch {
	return &MoviePilotSearch{logger: log, mp: mp}
}

// Search 按关键字搜索资源
func (s *MoviePilotSearch) Search(ctx context.Context, keyword string) ([]SearchResult, error) {
	results, err := s.mp.SearchTitle(keyword)
	if err != nil {
		return nil, err
	}
	s.logger.Debugf("搜索 %q 返回 %d 条资源", keyword, len(results))
	return results, nil
}
