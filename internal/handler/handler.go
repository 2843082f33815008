package handler

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"comic-server/internal/models"
	"comic-server/internal/task"
	"comic-server/internal/workflow"
)

// APIError is the standard error response body.
type APIError struct {
	Message string `json:"message"`
}

// Handler exposes the task orchestration operations over HTTP.
type Handler struct {
	executor *task.Executor
	workflow *workflow.Workflow
	logger   *zap.Logger
}

func New(executor *task.Executor, wf *workflow.Workflow, logger *zap.Logger) *Handler {
	return &Handler{
		executor: executor,
		workflow: wf,
		logger:   logger.Named("HTTPHandler"),
	}
}

// Router builds the gin engine with middleware and routes.
func (h *Handler) Router(allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ZapLoggingMiddleware(h.logger))

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Request-ID")
	router.Use(cors.New(corsConfig))

	prom := ginprometheus.NewPrometheus("gin")
	prom.MetricsPath = "/metrics"
	prom.Use(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/tasks", h.submitTask)
		api.POST("/tasks/execute", h.executeTask)
		api.POST("/tasks/batch", h.batchExecute)
		api.GET("/tasks/queue", h.queueInfo)
		api.GET("/tasks/:id", h.taskStatus)
		api.DELETE("/tasks/:id", h.cancelTask)
		api.POST("/generations/:id/retry", h.retryGeneration)
		api.POST("/drafts/:id/approve", h.approveDraft)
		api.PATCH("/drafts/:id", h.updateDraft)
		api.GET("/projects/:id/generation-status", h.projectStatus)
	}

	return router
}

type submitTaskRequest struct {
	Kind       models.TaskKind       `json:"kind" binding:"required"`
	Context    models.TaskContext    `json:"context" binding:"required"`
	Parameters models.TaskParameters `json:"parameters"`
}

type submitTaskResponse struct {
	GenerationID string `json:"generation_id"`
}

// submitTask queues a task for background execution.
func (h *Handler) submitTask(c *gin.Context) {
	req := submitTaskRequest{Parameters: models.DefaultTaskParameters()}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}

	generationID, err := h.executor.Submit(c.Request.Context(), req.Kind, req.Context, req.Parameters, false)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, submitTaskResponse{GenerationID: generationID.String()})
}

// executeTask runs a task synchronously through the mode router and
// returns its final result.
func (h *Handler) executeTask(c *gin.Context) {
	req := submitTaskRequest{Parameters: models.DefaultTaskParameters()}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}

	result, err := h.workflow.RunGeneration(c.Request.Context(), req.Kind, req.Context, req.Parameters)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type batchRequest struct {
	Tasks       []task.TaskConfig `json:"tasks" binding:"required"`
	MaxParallel int               `json:"max_parallel"`
}

func (h *Handler) batchExecute(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}

	results := h.executor.BatchExecute(c.Request.Context(), req.Tasks, req.MaxParallel)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) taskStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	status, err := h.executor.GetTaskStatus(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if status.State == models.TaskStateNotFound {
		c.JSON(http.StatusNotFound, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) cancelTask(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	cancelled := h.executor.Cancel(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

// retryGeneration resets a failed generation and requeues it. Only
// failed generations can be retried; anything else is not found.
func (h *Handler) retryGeneration(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.executor.Retry(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"generation_id": id.String(), "status": "queued"})
}

func (h *Handler) queueInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.executor.QueueInfo())
}

func (h *Handler) approveDraft(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.workflow.Approve(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "selected"})
}

type updateDraftRequest struct {
	Feedback   string `json:"feedback"`
	Regenerate bool   `json:"regenerate"`
}

func (h *Handler) updateDraft(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req updateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}

	newGenerationID, err := h.workflow.UpdateDraft(c.Request.Context(), id, req.Feedback, req.Regenerate)
	if err != nil {
		h.handleError(c, err)
		return
	}

	resp := gin.H{"status": "updated"}
	if req.Regenerate {
		resp["generation_id"] = newGenerationID.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) projectStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	status, err := h.workflow.GetProjectStatus(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleError maps domain errors to HTTP status codes.
func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrUnknownTaskKind), errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
	default:
		h.logger.Error("Unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: "internal server error"})
	}
}
