package server

import (
	"context"
	"net/http"

	"link-porter/app/config"
	"link-porter/app/database"
	"link-porter/app/handler"
	"link-porter/app/linkdrop"
	"link-porter/app/linkkit"
	"link-porter/app/logger"
	"link-porter/app/middleware"
	"link-porter/app/pan115"
	"link-porter/app/service"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器及其后台服务
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	engine     *service.WorkflowEngine
	offlineSvc *service.OfflineTaskService
	subSvc     *service.SubscriptionService
	dropWatch  *linkdrop.Watcher
}

// New 创建一个新的 Server 实例并完成服务装配
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	router := gin.Default()

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config: cfg,
		Logger: log,
	}

	if err := s.setupServices(); err != nil {
		return nil, err
	}
	s.setupRoutes()

	return s, nil
}

// setupServices 装配业务服务。
// 对账服务与流水线引擎通过终态事件队列解耦：
// 引擎持有队列，对账服务只拿写入端
func (s *Server) setupServices() error {
	db := database.GetDB()

	pan, err := pan115.New(s.Config.Pan115.Cookie, s.Logger)
	if err != nil {
		return err
	}

	moviePilotSvc := service.NewMoviePilotService(s.Config, s.Logger)
	statusQuery := service.NewPan115StatusQuery(pan)
	offlineSubmitter := service.NewPan115OfflineSubmitter(pan)
	s.offlineSvc = service.NewOfflineTaskService(db, s.Config, s.Logger, statusQuery)
	s.offlineSvc.BindSubmitter(offlineSubmitter)

	s.engine = service.NewWorkflowEngine(db, s.Config, s.Logger, service.WorkflowEngineDeps{
		Classifier: linkkit.NewClassifier(),
		ShareSave: map[string]service.ShareSaveExecutor{
			service.ExecutorShareSave115: service.NewPan115ShareSaver(pan),
		},
		Offline: map[string]service.OfflineSubmitExecutor{
			service.ExecutorOffline115: offlineSubmitter,
		},
		OfflineStore: s.offlineSvc,
		Organize:     service.NewOrganizeService(s.Config, s.Logger, pan, moviePilotSvc),
		Strm:         service.NewStrmService(s.Config, s.Logger),
		Refresh:      service.NewEmbyService(s.Config, s.Logger),
		Notify:       service.NewTelegramService(s.Config, s.Logger),
	})
	s.offlineSvc.BindEvents(s.engine.Events())

	search := service.NewMoviePilotSearch(moviePilotSvc, s.Logger)
	s.subSvc = service.NewSubscriptionService(db, s.Config, s.Logger, search, s.engine)

	s.dropWatch, err = linkdrop.NewWatcher(s.Config, s.Logger, s.engine)
	if err != nil {
		return err
	}

	return nil
}

// Start 启动后台服务和 HTTP 服务器
func (s *Server) Start() error {
	s.engine.Start()
	s.offlineSvc.Start()
	s.subSvc.Start()
	if err := s.dropWatch.Start(); err != nil {
		s.Logger.Errorf("启动链接投递监控失败: %v", err)
	}

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 按依赖反序停止服务
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.dropWatch.Stop(); err != nil {
		s.Logger.Errorf("停止链接投递监控失败: %v", err)
	}
	s.subSvc.Stop()
	s.offlineSvc.Stop()
	s.engine.Stop()

	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.Config)
	workflowHandler := handler.NewWorkflowHandler(s.engine)
	offlineHandler := handler.NewOfflineTaskHandler(s.offlineSvc, s.engine)
	subHandler := handler.NewSubscriptionHandler(s.subSvc)

	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// 用户相关
		protected.GET("/me", authHandler.Me)

		// 任务流水线相关路由
		tasks := protected.Group("/tasks")
		{
			tasks.POST("/", workflowHandler.Submit)
			tasks.GET("/", workflowHandler.List)
			tasks.GET("/pending", workflowHandler.Pending)
			tasks.GET("/:id", workflowHandler.Get)
			tasks.POST("/:id/choose", workflowHandler.Choose)
		}

		// 离线任务相关路由
		offline := protected.Group("/offline-tasks")
		{
			offline.POST("/", offlineHandler.Create)
			offline.GET("/", offlineHandler.List)
			offline.GET("/:id", offlineHandler.Get)
			offline.POST("/:id/cancel", offlineHandler.Cancel)
			offline.POST("/:id/retry", offlineHandler.Retry)
			offline.POST("/sync", offlineHandler.Sync)
		}

		// 订阅相关路由
		subs := protected.Group("/subscriptions")
		{
			subs.GET("/", subHandler.List)
			subs.POST("/", subHandler.Create)
			subs.PUT("/:id", subHandler.Update)
			subs.DELETE("/:id", subHandler.Delete)
			subs.GET("/:id/history", subHandler.History)
			subs.POST("/:id/check", subHandler.Check)
			subs.GET("/availability", subHandler.CheckAvailability)
		}
	}
}
