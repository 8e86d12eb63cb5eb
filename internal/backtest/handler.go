package backtest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"verdict/internal/logger"
	"verdict/pkg/errors"
)

type Handler struct {
	runner *Runner
	logger logger.Logger
}

func NewHandler(runner *Runner, log logger.Logger) *Handler {
	return &Handler{
		runner: runner,
		logger: log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine, middlewares ...gin.HandlerFunc) {
	v1 := router.Group("/api/v1", middlewares...)
	{
		backtests := v1.Group("/backtests")
		{
			backtests.POST("", h.Submit)
			backtests.GET("/:id", h.Get)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// Submit godoc
// @Summary      Submit a backtest job
// @Description  Replays recorded production traffic for a rule against a candidate source on the worker pool
// @Tags         backtests
// @Accept       json
// @Produce      json
// @Param        job  body      SubmitRequest  true  "Backtest request"
// @Success      202  {object}  JobView
// @Failure      400  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /backtests [post]
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	view, err := h.runner.Submit(req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, view)
}

// Get godoc
// @Summary      Poll a backtest job
// @Description  Returns the job status and, once completed, the per-event diff and outcome distributions
// @Tags         backtests
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  JobView
// @Failure      404  {object}  map[string]interface{}
// @Router       /backtests/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	view := h.runner.Job(c.Param("id"))
	if view == nil {
		h.handleError(c, errors.ErrNotFound.WithDetail("job_id", c.Param("id")))
		return
	}

	c.JSON(http.StatusOK, view)
}
