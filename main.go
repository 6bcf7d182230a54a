package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"meeting_web/internal/api"
	"meeting_web/internal/bus"
	"meeting_web/internal/models"
	"meeting_web/internal/repository"
	"meeting_web/internal/service"
	"meeting_web/internal/storage"
	"meeting_web/pkg/config"
)

func main() {
	// 載入應用程式配置
	// 從配置文件中讀取設置，如數據庫連接信息和房間引擎的調校參數
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化資料庫連接
	db, err := storage.NewPostgresDB(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	// 確保在程序結束時關閉數據庫連接
	defer db.Close()

	// 自動遷移資料庫結構
	if err := db.AutoMigrate(&models.User{}, &models.Room{}, &models.Participant{}, &models.TranscriptEvent{}); err != nil {
		log.Fatalf("Failed to auto migrate database: %v", err)
	}

	// 初始化 repositories
	repos := repository.NewRepositories(db)

	// 記錄異動通知走行程內的匯流排
	eventBus := bus.New()

	// 初始化 services
	services := service.NewServices(repos, eventBus, cfg)
	defer services.Reaper.Stop()

	// 設置 Gin 路由
	r := gin.Default()
	api.SetupRoutes(r, services)

	// 啟動伺服器
	if err := r.Run(cfg.Server.Address); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
