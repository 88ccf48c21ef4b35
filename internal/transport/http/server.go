package http

import (
	"github.com/gin-gonic/gin"

	"contracts-rag/internal/bootstrap"
	"contracts-rag/internal/transport/http/handler"
	"contracts-rag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	if app.Config.Upload.MaxBytes > 0 {
		// headroom for multipart framing and form fields
		router.MaxMultipartMemory = app.Config.Upload.MaxBytes + 1<<20
	}

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	svc := app.Services
	authHandler := handler.NewAuthHandler(svc.Auth)
	contractHandler := handler.NewContractHandler(svc.Contracts, app.Config.Upload.MaxBytes)
	askHandler := handler.NewAskHandler(svc.Retrieval)
	eventHandler := handler.NewEventHandler(svc.Events)
	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	contractGroup := v1.Group("/contracts")
	contractGroup.Use(requireAuth)
	contractGroup.POST("", contractHandler.Upload)
	contractGroup.POST("/text", contractHandler.CreateFromText)
	contractGroup.GET("", contractHandler.List)
	contractGroup.GET("/:id", contractHandler.Detail)
	contractGroup.GET("/:id/insights", contractHandler.Insights)
	contractGroup.DELETE("/:id", contractHandler.Delete)

	v1.POST("/ask", requireAuth, askHandler.Ask)
	v1.GET("/events", requireAuth, eventHandler.List)

	return router
}
