package main

import (
	"flag"
	"log"
	"time"

	"k8s.io/klog/v2"

	"github.com/eduadocs/backend/config"
	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/eventbus"
	"github.com/eduadocs/backend/internal/handler"
	"github.com/eduadocs/backend/internal/pkg/database"
	"github.com/eduadocs/backend/internal/repository"
	"github.com/eduadocs/backend/internal/repository/memory"
	"github.com/eduadocs/backend/internal/router"
	"github.com/eduadocs/backend/internal/service"
	"github.com/eduadocs/backend/internal/service/draftgen"
	"github.com/eduadocs/backend/internal/service/exporter"
	"github.com/eduadocs/backend/internal/service/ingest"
	"github.com/eduadocs/backend/internal/service/wizard"
	"github.com/eduadocs/backend/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	// 初始化会话存储
	sessionRepo, err := newSessionRepository(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize session store: %v", err)
	}

	// 初始化事件总线与订阅者
	bus := eventbus.NewWizardEventBus()
	stats := subscriber.NewWizardEventSubscriber()
	stats.Register(bus)

	// 初始化 Service
	controller := wizard.NewController(draftgen.NewTemplateGenerator(), exporter.New())
	uploadLimits := ingest.Options{
		MaxFiles:     cfg.Upload.MaxFiles,
		MaxFileBytes: cfg.Upload.MaxFileBytes,
	}
	ingestService := ingest.New(uploadLimits)
	wizardService := service.NewWizardService(sessionRepo, controller, ingestService, bus)

	// 定期清理过期会话
	go cleanupExpiredSessions(wizardService, cfg.Session.CleanupInterval)

	// 初始化 Handler
	wizardHandler := handler.NewWizardHandler(wizardService, bus, domain.OutputFormat(cfg.Export.DefaultFormat)).
		WithUploadLimits(uploadLimits)

	// 设置路由
	r := router.Setup(cfg, wizardHandler, stats)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func newSessionRepository(cfg *config.Config) (repository.SessionRepository, error) {
	if cfg.Session.Store == config.StoreSQLite {
		db, err := database.InitDB(database.MemoryDSN)
		if err != nil {
			return nil, err
		}
		klog.V(6).Infof("会话存储: sqlite (内存), ttl=%s", cfg.Session.TTL)
		return repository.NewSessionRepository(db, cfg.Session.TTL), nil
	}

	klog.V(6).Infof("会话存储: memory, ttl=%s", cfg.Session.TTL)
	return memory.NewSessionRepository(cfg.Session.TTL, cfg.Session.CleanupInterval), nil
}

// cleanupExpiredSessions 定期删除过期会话
func cleanupExpiredSessions(wizardService *service.WizardService, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		affected, err := wizardService.CleanupExpired()
		if err != nil {
			klog.V(6).Infof("清理过期会话失败: %v", err)
			continue
		}
		if affected > 0 {
			active, _ := wizardService.ActiveSessions()
			klog.V(6).Infof("清理了 %d 个过期会话，剩余 %d 个", affected, active)
		}
	}
}
