package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subaggr/internal/config"
	"subaggr/internal/fetch"
	"subaggr/internal/handler"
	"subaggr/internal/logger"
	"subaggr/internal/notify"
	"subaggr/internal/storage"
	"subaggr/internal/subscription"
	"subaggr/internal/version"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("配置加载失败", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.Info("订阅聚合服务启动中", "version", version.Version)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if cfg.LogToFile {
		startFileLogging(bgCtx, cfg.LogDir)
	}
	defer logger.Close()

	if cfg.Token == "" {
		logger.Warn("未设置 TOKEN，所有订阅请求都将被拒绝")
	}

	repo, err := storage.NewRepository(cfg.DataPath)
	if err != nil {
		logger.Error("订阅数据库初始化失败", "path", cfg.DataPath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	generator := subscription.NewGenerator(
		fetch.NewClient(fetch.Options{Timeout: cfg.FetchTimeout}),
		fetch.NewClient(fetch.Options{Timeout: cfg.ConvertTimeout}),
	)

	notifier := notify.NewTelegram(notify.Options{BotToken: cfg.TGToken, ChatID: cfg.TGID})
	if notifier.Enabled() {
		logger.Info("Telegram 通知已启用", "chat_id", cfg.TGID, "alerts", cfg.AlertsEnabled())
	}

	app := handler.NewApp(handler.Options{
		Config:    cfg,
		Store:     repo,
		Generator: generator,
		Notifier:  notifier,
	})

	allowedOrigins := parseAllowedOrigins(cfg.AllowedOrigins)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           withCORS(handler.WithRequestID(app), allowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP服务器启动", "version", version.Version, "address", srv.Addr, "data", cfg.DataPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP服务器运行失败", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(srv, stopBackground)

	if err := repo.Checkpoint(); err != nil {
		logger.Warn("数据库检查点失败", "error", err)
	}
}

// startFileLogging 创建日志文件并启动每小时一次的清理与轮转
func startFileLogging(ctx context.Context, dir string) {
	mgr := logger.NewLogManager(dir)
	path, err := mgr.CreateLogFile()
	if err != nil {
		logger.Warn("创建日志文件失败，仅输出到控制台", "dir", dir, "error", err)
		return
	}
	if err := logger.EnableFile(path); err != nil {
		logger.Warn("启用文件日志失败，仅输出到控制台", "path", path, "error", err)
		return
	}
	logger.Info("文件日志已启用", "path", path)
	go mgr.Run(ctx, time.Hour)
}

func waitForShutdown(srv *http.Server, cancels ...context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("收到关闭信号，开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, cancelFunc := range cancels {
		if cancelFunc != nil {
			cancelFunc()
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("优雅关闭失败", "error", err)
	} else {
		logger.Info("服务器已安全关闭")
	}
}
