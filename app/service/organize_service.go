package service

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"link-porter/app/config"
	"link-porter/app/logger"
	"link-porter/app/model"
	"link-porter/app/pan115"

	sdk115 "github.com/OpenListTeam/115-sdk-go"
)

// OrganizeService 整理执行器。
// 列出转存目录里的新文件，用 MoviePilot 识别媒体信息并生成标准文件名，
// 在网盘上重命名后返回整理结果。识别不出来的文件保留原名
type OrganizeService struct {
	logger        *logger.Logger
	cfg           *config.Config
	sdk115Open    *sdk115.Client
	pan           *pan115.Client
	moviePilotSvc *MoviePilotService
}

// NewOrganizeService 创建整理执行器
func NewOrganizeService(cfg *config.Config, log *logger.Logger, pan *pan115.Client, mp *MoviePilotService) *OrganizeService {
	return &OrganizeService{
		logger:        log,
		cfg:           cfg,
		sdk115Open:    sdk115.New(),
		pan:           pan,
		moviePilotSvc: mp,
	}
}

// Organize 整理转存目录中最近入库的文件
func (s *OrganizeService) Organize(ctx context.Context, task *model.WorkflowTask) (OrganizeResult, error) {
	s.sdk115Open.SetAccessToken(s.cfg.Pan115.AccessToken)

	req := &sdk115.GetFilesReq{
		CID:     s.cfg.Pan115.SaveDirID,
		ShowDir: true,
		Stdir:   1,
		Limit:   50,
		Offset:  0,
	}
	resp, err := s.sdk115Open.GetFiles(ctx, req)
	if err != nil {
		return OrganizeResult{}, fmt.Errorf("获取115文件列表失败: %w", err)
	}

	// 目录按最近变更排在前面，取第一个文件条目作为本次任务的产物
	var fileID, fileName string
	for _, file := range resp.Data {
		if file.Fc != "1" {
			continue
		}
		fileID = file.Fid
		fileName = file.Fn
		break
	}
	if fileName == "" {
		return OrganizeResult{}, fmt.Errorf("转存目录中没有找到待整理的文件")
	}

	info, recErr := s.moviePilotSvc.RecognizeFile(fileName)
	if recErr != nil {
		s.logger.Warnf("识别媒体信息失败，保留原名: file=%s, err=%v", fileName, recErr)
		return OrganizeResult{OrganizedPath: path.Join("/", fileName)}, nil
	}

	transferName, err := s.moviePilotSvc.TransferName(fileName)
	if err != nil || strings.TrimSpace(transferName) == "" {
		transferName = fileName
	}
	if path.Ext(transferName) == "" && path.Ext(fileName) != "" {
		transferName += path.Ext(fileName)
	}

	if transferName != fileName {
		if err := s.pan.RenameFile(ctx, fileID, transferName); err != nil {
			// 改名失败不致命，路径仍按标准名记录
			s.logger.Warnf("网盘重命名失败: file=%s, err=%v", fileName, err)
		}
	}

	return OrganizeResult{
		OrganizedPath: buildTargetPath(info, transferName, fileName),
		MediaInfo:     info.Raw,
	}, nil
}

// buildTargetPath 生成整理后的逻辑路径：/标题 (年份)/Season xx/文件名
func buildTargetPath(info MediaRecognition, transferName, originalName string) string {
	folder := strings.TrimSpace(info.TitleYear)
	if folder == "" {
		folder = strings.TrimSpace(info.Title)
		if folder == "" {
			folder = strings.TrimSuffix(originalName, filepath.Ext(originalName))
		}
		if info.Year != "" && !strings.Contains(folder, info.Year) {
			folder = fmt.Sprintf("%s (%s)", folder, info.Year)
		}
	}

	base := path.Join("/", folder)
	if info.HasSeason {
		base = path.Join(base, fmt.Sprintf("Season %02d", info.Season))
	}
	return path.Join(base, transferName)
}
