package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"dermascan-gateway/internal/bootstrap"
	"dermascan-gateway/internal/transport/http/handler"
	"dermascan-gateway/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestID(), newCORS(app.Config.CORS.AllowedOrigins))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	uploadHandler := handler.NewUploadHandler(
		app.Detector,
		app.Config.Provider.ErrorMode,
		int64(app.Config.Upload.MaxMB)<<20,
		app.Config.Upload.MaxPixels,
	)
	router.GET("/", uploadHandler.Info)
	router.POST("/", uploadHandler.Upload)

	if app.Detections != nil {
		detectionHandler := handler.NewDetectionHandler(app.Detections)
		v1 := router.Group("/api/v1")
		v1.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
		v1.GET("/detections", detectionHandler.List)
	}

	return router
}

func newCORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
