package evaluation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"verdict/internal/logger"
	"verdict/pkg/errors"
)

type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/evaluate", h.Evaluate)
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// Evaluate godoc
// @Summary      Evaluate an event against the production ruleset
// @Description  Normalizes the event fields, runs every production rule and returns the aggregated outcomes
// @Tags         evaluation
// @Accept       json
// @Produce      json
// @Param        event  body      EvaluateRequest  true  "Event to evaluate"
// @Success      200    {object}  EvaluateResponse
// @Failure      400    {object}  map[string]interface{}
// @Failure      503    {object}  map[string]interface{}
// @Router       /evaluate [post]
func (h *Handler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.service.Evaluate(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
