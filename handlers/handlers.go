package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loiht2/ml-platform-email-classifier/backend/classifier"
	"github.com/loiht2/ml-platform-email-classifier/backend/converter"
	"github.com/loiht2/ml-platform-email-classifier/backend/models"
	"github.com/loiht2/ml-platform-email-classifier/backend/monitor"
	"github.com/loiht2/ml-platform-email-classifier/backend/registry"
	"github.com/loiht2/ml-platform-email-classifier/backend/repository"
	"github.com/loiht2/ml-platform-email-classifier/backend/storage"
)

// ServiceName is reported by the banner endpoint
const (
	ServiceName    = "Email Classification Service"
	ServiceVersion = "1.0.0"
)

// ModelCatalog lists and activates saved models
type ModelCatalog interface {
	ListModels(ctx context.Context) ([]models.CatalogEntry, error)
	ActivateModel(ctx context.Context, name string) error
	ListArchivedJobs(ctx context.Context, limit int) ([]models.JobSummary, error)
}

// ActiveModelPublisher shares the active model name with other replicas
type ActiveModelPublisher interface {
	SetActiveModel(ctx context.Context, name string) error
}

// Dependencies are the components a Handler serves
type Dependencies struct {
	Registry   *registry.Registry
	Monitor    *monitor.JobMonitor
	Gateway    *storage.Gateway
	Classifier *classifier.Service
	// Loader reads models on activation; defaults to the gateway's output dir
	Loader *classifier.Loader
	// Catalog and Publisher are optional
	Catalog   ModelCatalog
	Publisher ActiveModelPublisher
}

// Handler handles HTTP requests
type Handler struct {
	registry   *registry.Registry
	monitor    *monitor.JobMonitor
	gateway    *storage.Gateway
	classifier *classifier.Service
	loader     *classifier.Loader
	catalog    ModelCatalog
	publisher  ActiveModelPublisher
	converter  *converter.Converter
}

// NewHandler creates a new handler instance
func NewHandler(deps Dependencies) *Handler {
	loader := deps.Loader
	if loader == nil && deps.Gateway != nil {
		loader = &classifier.Loader{ModelDir: deps.Gateway.OutputDir()}
	}
	return &Handler{
		registry:   deps.Registry,
		monitor:    deps.Monitor,
		gateway:    deps.Gateway,
		classifier: deps.Classifier,
		loader:     loader,
		catalog:    deps.Catalog,
		publisher:  deps.Publisher,
		converter:  converter.NewConverter(),
	}
}

func respondError(c *gin.Context, status int, summary string, err error) {
	c.JSON(status, gin.H{
		"error":   summary,
		"details": err.Error(),
	})
}

// Root handles GET /
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"version": ServiceVersion,
		"status":  "running",
	})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	loaded := h.classifier.Loaded()
	status := "healthy"
	if !loaded {
		status = "unhealthy"
	}
	c.JSON(http.StatusOK, models.HealthResponse{Status: status, ModelLoaded: loaded})
}

// ModelInfo handles GET /api/v1/model/info
func (h *Handler) ModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.classifier.Info())
}

// Classify handles POST /api/v1/classify
func (h *Handler) Classify(c *gin.Context) {
	var req models.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request payload", errors.New(describeValidation(err)))
		return
	}

	resp, err := h.classifier.Predict(strings.TrimSpace(req.Title), strings.TrimSpace(req.Content))
	if errors.Is(err, classifier.ErrModelNotLoaded) {
		respondError(c, http.StatusServiceUnavailable, "Model not loaded", err)
		return
	}
	if err != nil {
		log.Printf("Classification failed: %v", err)
		respondError(c, http.StatusInternalServerError, "Model prediction failed", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StartRetraining handles POST /api/v1/retrain
func (h *Handler) StartRetraining(c *gin.Context) {
	var req models.RetrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Invalid retrain request: %v", err)
		respondError(c, http.StatusBadRequest, "Invalid request payload", errors.New(describeValidation(err)))
		return
	}

	in := h.converter.ConvertRetrainRequest(&req)
	if _, err := h.monitor.Submit(in.JobID, in.ModelType, in.Samples, in.Hyperparameters); err != nil {
		log.Printf("Failed to start retraining job %s: %v", in.JobID, err)
		status := http.StatusInternalServerError
		if errors.Is(err, monitor.ErrMonitorStopped) {
			status = http.StatusServiceUnavailable
		}
		respondError(c, status, "Failed to start retraining", err)
		return
	}

	log.Printf("Retraining job %s started (%s, %d samples)", in.JobID, in.ModelType, len(in.Samples))
	c.JSON(http.StatusOK, models.RetrainResponse{
		JobID:   in.JobID,
		Status:  models.JobRunning,
		Message: fmt.Sprintf("Training started for %s model with %d samples", in.ModelType, len(in.Samples)),
	})
}

// GetTrainingStatus handles GET /api/v1/retrain/status/:jobId
func (h *Handler) GetTrainingStatus(c *gin.Context) {
	jobID := c.Param("jobId")
	st, ok := h.registry.GetJobStatus(jobID)
	if !ok {
		respondError(c, http.StatusNotFound, "Job not found", fmt.Errorf("job %s not found", jobID))
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetTrainingResults handles GET /api/v1/retrain/results/:jobId
func (h *Handler) GetTrainingResults(c *gin.Context) {
	jobID := c.Param("jobId")
	if res, ok := h.registry.GetJobResults(jobID); ok {
		c.JSON(http.StatusOK, res)
		return
	}

	st, ok := h.registry.GetJobStatus(jobID)
	if !ok {
		respondError(c, http.StatusNotFound, "Job not found", fmt.Errorf("job %s not found", jobID))
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Job not completed",
		"details": fmt.Sprintf("job %s is %s", jobID, st.Status),
		"status":  st.Status,
	})
}

// SaveModel handles POST /api/v1/retrain/save/:jobId
func (h *Handler) SaveModel(c *gin.Context) {
	jobID := c.Param("jobId")
	var req models.SaveModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request payload", errors.New(describeValidation(err)))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	modelName := strings.TrimSpace(req.ModelName)
	log.Printf("Saving model for job %s as %s", jobID, modelName)
	path, err := h.gateway.Save(ctx, jobID, modelName)
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		respondError(c, http.StatusNotFound, "Job not found", err)
		return
	case errors.Is(err, storage.ErrJobNotCompleted),
		errors.Is(err, storage.ErrArtifactsMissing),
		errors.Is(err, storage.ErrInvalidModelName):
		respondError(c, http.StatusBadRequest, "Cannot save model", err)
		return
	case err != nil:
		log.Printf("Failed to save model for job %s: %v", jobID, err)
		respondError(c, http.StatusInternalServerError, "Failed to save model", err)
		return
	}

	c.JSON(http.StatusOK, models.SaveModelResponse{
		Success:   true,
		ModelPath: path,
		Message:   "Model saved successfully",
	})
}

// ListTrainingJobs handles GET /api/v1/retrain/jobs
func (h *Handler) ListTrainingJobs(c *gin.Context) {
	jobs := h.registry.ListJobs()
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// DeleteTrainingJob handles DELETE /api/v1/retrain/jobs/:jobId
func (h *Handler) DeleteTrainingJob(c *gin.Context) {
	jobID := c.Param("jobId")
	if !h.registry.DeleteJob(jobID) {
		respondError(c, http.StatusNotFound, "Job not found", fmt.Errorf("job %s not found", jobID))
		return
	}
	log.Printf("Deleted training job %s", jobID)
	c.JSON(http.StatusOK, gin.H{"message": "Training job deleted successfully"})
}

// ListTrainingHistory handles GET /api/v1/retrain/history
func (h *Handler) ListTrainingHistory(c *gin.Context) {
	if h.catalog == nil {
		respondError(c, http.StatusServiceUnavailable, "Job archive unavailable", errors.New("no database configured"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		respondError(c, http.StatusBadRequest, "Invalid limit", fmt.Errorf("limit must be a positive integer"))
		return
	}

	jobs, err := h.catalog.ListArchivedJobs(c.Request.Context(), limit)
	if err != nil {
		log.Printf("Failed to list archived jobs: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to list archived jobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// ListModels handles GET /api/v1/models
func (h *Handler) ListModels(c *gin.Context) {
	if h.catalog == nil {
		respondError(c, http.StatusServiceUnavailable, "Model catalog unavailable", errors.New("no database configured"))
		return
	}
	entries, err := h.catalog.ListModels(c.Request.Context())
	if err != nil {
		log.Printf("Failed to list models: %v", err)
		respondError(c, http.StatusInternalServerError, "Failed to list models", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": entries, "count": len(entries)})
}

// ActivateModel handles POST /api/v1/models/:name/activate
func (h *Handler) ActivateModel(c *gin.Context) {
	name := c.Param("name")
	if h.catalog == nil {
		respondError(c, http.StatusServiceUnavailable, "Model catalog unavailable", errors.New("no database configured"))
		return
	}
	if err := storage.ValidateModelName(name); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid model name", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	// Read the model before anything records it as active
	a, md, err := h.loader.Prepare(ctx, name)
	if err != nil {
		if errors.Is(err, classifier.ErrModelUnavailable) {
			respondError(c, http.StatusNotFound, "Model files not found", err)
			return
		}
		log.Printf("Failed to load model %s: %v", name, err)
		respondError(c, http.StatusInternalServerError, "Model could not be loaded", err)
		return
	}

	if err := h.catalog.ActivateModel(ctx, name); err != nil {
		if errors.Is(err, repository.ErrModelNotFound) {
			respondError(c, http.StatusNotFound, "Model not found", err)
			return
		}
		log.Printf("Failed to activate model %s: %v", name, err)
		respondError(c, http.StatusInternalServerError, "Failed to activate model", err)
		return
	}
	if h.publisher != nil {
		if err := h.publisher.SetActiveModel(ctx, name); err != nil {
			log.Printf("Warning: failed to publish active model %s: %v", name, err)
		}
	}

	h.classifier.Use(a, *md, "catalog:"+name)
	c.JSON(http.StatusOK, gin.H{"message": "Model activated", "model": h.classifier.Info()})
}
