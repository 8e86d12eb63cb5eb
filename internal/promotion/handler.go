package promotion

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"verdict/internal/logger"
	"verdict/internal/rules"
	"verdict/pkg/errors"
)

type CheckRequest struct {
	RuleID string `json:"rule_id"`
	Source string `json:"source" binding:"required"`
}

type DeployRequest struct {
	Name      string `json:"name"`
	Source    string `json:"source" binding:"required"`
	ChangedBy string `json:"changed_by"`
}

type PromoteRequest struct {
	ChangedBy string `json:"changed_by"`
	Reason    string `json:"reason"`
}

type Handler struct {
	coordinator *Coordinator
	repo        rules.Repository
	logger      logger.Logger
}

func NewHandler(coordinator *Coordinator, repo rules.Repository, log logger.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		repo:        repo,
		logger:      log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine, middlewares ...gin.HandlerFunc) {
	v1 := router.Group("/api/v1", middlewares...)
	{
		rulesGroup := v1.Group("/rules")
		{
			rulesGroup.POST("/check", h.Check)
			rulesGroup.GET("/:id", h.GetRule)
			rulesGroup.GET("/:id/revisions", h.ListRevisions)
			rulesGroup.PUT("/:id/shadow", h.DeployToShadow)
			rulesGroup.DELETE("/:id/shadow", h.RemoveFromShadow)
			rulesGroup.POST("/:id/promote", h.Promote)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

// Check godoc
// @Summary      Compile-check a rule source
// @Description  Validates a candidate rule body against the current outcome vocabulary without saving anything
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        rule  body      CheckRequest  true  "Candidate source"
// @Success      200   {object}  map[string]interface{}
// @Failure      422   {object}  map[string]interface{}
// @Router       /rules/check [post]
func (h *Handler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if err := h.coordinator.CheckRule(c.Request.Context(), req.RuleID, req.Source); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetRule godoc
// @Summary      Get the current revision of a rule
// @Tags         rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  rules.RuleRevision
// @Failure      404  {object}  map[string]interface{}
// @Router       /rules/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	rev, err := h.repo.GetCurrentRevision(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	if rev == nil {
		h.handleError(c, errors.ErrNotFound.WithDetail("rule_id", c.Param("id")))
		return
	}

	c.JSON(http.StatusOK, rev)
}

// ListRevisions godoc
// @Summary      List all saved revisions of a rule
// @Tags         rules
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {array}   rules.RuleRevision
// @Router       /rules/{id}/revisions [get]
func (h *Handler) ListRevisions(c *gin.Context) {
	revisions, err := h.repo.ListRevisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	if revisions == nil {
		revisions = []rules.RuleRevision{}
	}

	c.JSON(http.StatusOK, revisions)
}

// DeployToShadow godoc
// @Summary      Deploy a rule draft to the shadow generation
// @Description  Compile-checks the source, upserts it as a shadow draft and restarts the rule's observation window
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id    path      string         true  "Rule ID"
// @Param        rule  body      DeployRequest  true  "Draft source"
// @Success      200   {object}  map[string]interface{}
// @Failure      422   {object}  map[string]interface{}
// @Failure      409   {object}  map[string]interface{}
// @Router       /rules/{id}/shadow [put]
func (h *Handler) DeployToShadow(c *gin.Context) {
	var req DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	ruleID := c.Param("id")
	if err := h.coordinator.DeployToShadow(c.Request.Context(), ruleID, req.Name, req.Source, req.ChangedBy); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule_id": ruleID, "generation": "shadow"})
}

// RemoveFromShadow godoc
// @Summary      Remove a rule from the shadow generation
// @Tags         rules
// @Produce      json
// @Param        id          path      string  true   "Rule ID"
// @Param        changed_by  query     string  false  "Operator"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Router       /rules/{id}/shadow [delete]
func (h *Handler) RemoveFromShadow(c *gin.Context) {
	ruleID := c.Param("id")
	if err := h.coordinator.RemoveFromShadow(c.Request.Context(), ruleID, c.Query("changed_by")); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule_id": ruleID, "removed": true})
}

// Promote godoc
// @Summary      Promote a shadow rule to production
// @Description  Atomically saves the draft as a new revision, adds it to production and removes it from shadow
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        id       path      string          true  "Rule ID"
// @Param        request  body      PromoteRequest  true  "Promotion metadata"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /rules/{id}/promote [post]
func (h *Handler) Promote(c *gin.Context) {
	var req PromoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	ruleID := c.Param("id")
	if err := h.coordinator.Promote(c.Request.Context(), ruleID, req.ChangedBy, req.Reason); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rule_id": ruleID, "promoted": true})
}
