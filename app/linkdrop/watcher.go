package linkdrop

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"link-porter/app/config"
	"link-porter/app/logger"
	"link-porter/app/service"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Submitter 接收投递的链接文本并创建任务
type Submitter interface {
	Submit(ctx context.Context, chatID, userID int64, rawText string) (*service.SubmitResult, error)
}

// Watcher 链接投递目录监控器。
// 把 .txt/.magnet 文件丢进目录即可批量提交任务，
// 处理完的文件改名加 .done 后缀，避免重复提交
type Watcher struct {
	cfg      *config.Config
	logger   *logger.Logger
	engine   Submitter
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	wg       sync.WaitGroup
	watching bool
	mu       sync.Mutex
}

// NewWatcher 创建投递目录监控器，未启用时返回 nil
func NewWatcher(cfg *config.Config, log *logger.Logger, engine Submitter) (*Watcher, error) {
	if !cfg.LinkDrop.Enabled {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	return &Watcher{
		cfg:     cfg,
		logger:  log,
		engine:  engine,
		watcher: fsw,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start 启动监控，并补扫一遍目录里已存在的文件
func (w *Watcher) Start() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("链接投递监控已经在运行")
	}

	if err := os.MkdirAll(w.cfg.LinkDrop.Path, 0755); err != nil {
		return fmt.Errorf("创建投递目录失败: %w", err)
	}
	if err := w.watcher.Add(w.cfg.LinkDrop.Path); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	w.watching = true
	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Infof("链接投递监控已启动: %s", w.cfg.LinkDrop.Path)

	go w.processExisting()
	return nil
}

// Stop 停止监控
func (w *Watcher) Stop() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return nil
	}

	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()
	w.watching = false

	w.logger.Info("链接投递监控已停止")
	return nil
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("链接投递监控错误: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}
	if !w.shouldProcess(event.Name) {
		return
	}

	if err := w.waitForFileReady(event.Name); err != nil {
		w.logger.Warnf("等待文件就绪失败: %s, 错误: %v", event.Name, err)
		return
	}

	if err := w.processFile(event.Name); err != nil {
		w.logger.Errorf("处理投递文件失败: %s, 错误: %v", event.Name, err)
	}
}

// processExisting 补扫目录里已有的未处理文件
func (w *Watcher) processExisting() {
	time.Sleep(1 * time.Second)

	entries, err := os.ReadDir(w.cfg.LinkDrop.Path)
	if err != nil {
		w.logger.Warnf("扫描投递目录失败: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.cfg.LinkDrop.Path, entry.Name())
		if !w.shouldProcess(path) {
			continue
		}
		if err := w.processFile(path); err != nil {
			w.logger.Errorf("处理投递文件失败: %s, 错误: %v", path, err)
		}
	}
}

func (w *Watcher) shouldProcess(path string) bool {
	if strings.HasSuffix(path, ".done") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".magnet"
}

// waitForFileReady 等待文件写入完成（大小稳定两次检查）
func (w *Watcher) waitForFileReady(path string) error {
	var lastSize int64 = -1
	for i := 0; i < 10; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Size() == lastSize {
			return nil
		}
		lastSize = info.Size()
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("文件持续写入中: %s", path)
}

// processFile 逐行读取文件并提交，整个文件处理完后改名为 .done
func (w *Watcher) processFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开投递文件失败: %w", err)
	}
	defer f.Close()

	// Windows 记事本保存的文件常带 BOM，甚至是 UTF-16，按 BOM 识别后统一解码
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(f, decoder))

	var submitted, failed int
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, err := w.engine.Submit(ctx, w.cfg.LinkDrop.ChatID, 0, line)
		cancel()
		if err != nil {
			w.logger.Warnf("投递链接提交失败: %s, 错误: %v", line, err)
			failed++
			continue
		}
		submitted++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("读取投递文件失败: %w", err)
	}

	if err := os.Rename(path, path+".done"); err != nil {
		w.logger.Warnf("标记投递文件失败: %s, 错误: %v", path, err)
	}

	w.logger.Infof("投递文件处理完成: %s, 提交 %d 条, 失败 %d 条", filepath.Base(path), submitted, failed)
	return nil
}
