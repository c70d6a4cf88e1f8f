package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/loiht2/ml-platform-email-classifier/backend/middleware"
)

// RouterOptions configure the middleware chain
type RouterOptions struct {
	APIKey       string
	CORSOrigins  []string
	MaxBodyBytes int64
}

// NewRouter wires every route of the service
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	RegisterValidators()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.CORSMiddleware(opts.CORSOrigins))
	router.Use(middleware.RequestID())
	router.Use(middleware.BodyLimit(opts.MaxBodyBytes))

	// No auth required
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	api.GET("/model/info", h.ModelInfo)

	secured := api.Group("")
	secured.Use(middleware.APIKeyAuth(opts.APIKey))
	{
		secured.POST("/classify", h.Classify)

		retrain := secured.Group("/retrain")
		{
			retrain.POST("", h.StartRetraining)
			retrain.GET("/status/:jobId", h.GetTrainingStatus)
			retrain.GET("/results/:jobId", h.GetTrainingResults)
			retrain.POST("/save/:jobId", h.SaveModel)
			retrain.GET("/jobs", h.ListTrainingJobs)
			retrain.DELETE("/jobs/:jobId", h.DeleteTrainingJob)
			retrain.GET("/history", h.ListTrainingHistory)
		}

		secured.GET("/models", h.ListModels)
		secured.POST("/models/:name/activate", h.ActivateModel)
	}

	return router
}
