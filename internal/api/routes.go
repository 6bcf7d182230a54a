package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meeting_web/internal/api/handlers"
	"meeting_web/internal/middleware"
	"meeting_web/internal/service"
)

func SetupRoutes(r *gin.Engine, services *service.Services) {
	// 初始化 handlers
	authHandler := handlers.NewAuthHandler(services.UserService)
	roomHandler := handlers.NewRoomHandler(services.RoomService, services.Coordinator, services.Sessions)
	wsHandler := handlers.NewWebSocketHandler(services.WebSocketManager, services.RoomService,
		services.Coordinator, services.Sessions)

	// API 路由群組
	api := r.Group("/api")

	// 處理 404 錯誤
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "找不到該路徑",
		})
	})

	// 公開路由
	{
		// 用戶認證相關
		api.POST("/register", authHandler.Register)
		api.POST("/login", authHandler.Login)

		// 基本的健康檢查
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	// 允許訪客的路由：加入房間與 WebSocket 連接
	// 有帶 token 的請求以登入身分處理，沒有帶的當作訪客
	guest := api.Group("/")
	guest.Use(middleware.OptionalAuthMiddleware())
	{
		guest.POST("/rooms/:ref/join", roomHandler.JoinRoom)         // 加入房間（或接回原記錄）
		guest.POST("/participants/:id/leave", roomHandler.LeaveRoom) // 明確離開房間
		guest.GET("/rooms/:ref/ws", wsHandler.HandleWebSocket)       // WebSocket 連接點
	}

	// 需要驗證的路由
	authorized := api.Group("/")
	authorized.Use(middleware.AuthMiddleware())
	{
		// 會議室相關
		rooms := authorized.Group("/rooms")
		{
			rooms.GET("", roomHandler.ListRooms)    // 獲取房間列表
			rooms.POST("", roomHandler.CreateRoom)  // 創建房間
			rooms.GET("/:ref", roomHandler.GetRoom) // 獲取房間信息，ref 可以是 ID 或短代碼
		}

		// 等候室管理
		participants := authorized.Group("/participants")
		{
			participants.POST("/:id/admit", roomHandler.Admit) // 批准進入房間
			participants.POST("/:id/deny", roomHandler.Deny)   // 拒絕進入房間
		}
	}
}
