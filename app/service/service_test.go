package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"link-porter/app/config"
	"link-porter/app/database"
	"link-porter/app/logger"
	"link-porter/app/model"
	"link-porter/app/pan115"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Output: "stdout"})
}

func newTestConfig() *config.Config {
	return &config.Config{
		Pan115:       config.Pan115Config{SaveDirID: "0"},
		Workflow:     config.WorkflowConfig{Workers: 1},
		Offline:      config.OfflineConfig{ReconcileInterval: 30, QueryTimeout: 5},
		Subscription: config.SubscriptionConfig{PollInterval: 1800, CacheTTL: 300},
	}
}

// fakeShareSaver 可注入错误的转存执行器
type fakeShareSaver struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeShareSaver) Save(ctx context.Context, link model.Link, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

// fakeOfflineSubmitter 可注入错误的离线提交执行器
type fakeOfflineSubmitter struct {
	mu         sync.Mutex
	externalID string
	err        error
	calls      int
}

func (f *fakeOfflineSubmitter) Submit(ctx context.Context, url, containerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.externalID, nil
}

func (f *fakeOfflineSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeProvider 供应商状态查询桩
type fakeProvider struct {
	mu          sync.Mutex
	status      pan115.TaskStatus
	err         error
	cancelCalls int
}

func (f *fakeProvider) Status(ctx context.Context, externalTaskID string) (pan115.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return pan115.TaskStatus{}, f.err
	}
	return f.status, nil
}

func (f *fakeProvider) Cancel(ctx context.Context, externalTaskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return nil
}

func (f *fakeProvider) setStatus(status pan115.TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.err = nil
}

// fakeOrganizer 整理执行器桩
type fakeOrganizer struct {
	result OrganizeResult
	err    error
}

func (f *fakeOrganizer) Organize(ctx context.Context, task *model.WorkflowTask) (OrganizeResult, error) {
	return f.result, f.err
}

type fakeStrm struct {
	err error
}

func (f *fakeStrm) Generate(ctx context.Context, task *model.WorkflowTask) error {
	return f.err
}

type fakeRefresher struct {
	err error
}

func (f *fakeRefresher) Refresh(ctx context.Context) error {
	return f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeNotifier) Notify(ctx context.Context, task *model.WorkflowTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSearch 搜索索引桩
type fakeSearch struct {
	mu      sync.Mutex
	results []SearchResult
	err     error
	calls   int
}

func (f *fakeSearch) Search(ctx context.Context, keyword string) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeSearch) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSubmitter 流水线入口桩，记录收到的提交
type fakeSubmitter struct {
	mu        sync.Mutex
	err       error
	submitted []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, chatID, userID int64, rawText string) (*SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, rawText)
	return &SubmitResult{}, nil
}

func (f *fakeSubmitter) submittedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}
