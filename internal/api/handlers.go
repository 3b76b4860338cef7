package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/audiopcb/veritas/internal/models"
	"github.com/audiopcb/veritas/internal/rules"
	"github.com/audiopcb/veritas/internal/services"
)

// Handlers maps the HTTP surface onto the validation manager.
type Handlers struct {
	manager *services.ValidationManager
	logger  *slog.Logger
}

// NewHandlers constructs the handler set.
func NewHandlers(manager *services.ValidationManager, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{manager: manager, logger: logger}
}

// Register mounts every route on the engine.
func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/health", h.health)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/rules", h.addRule)
		v1.GET("/rules", h.listRules)
		v1.GET("/rules/:id", h.getRule)
		v1.PATCH("/rules/:id", h.updateRule)
		v1.DELETE("/rules/:id", h.removeRule)

		v1.POST("/validate", h.validate)
		v1.POST("/rules/:id/feedback", h.addFeedback)
		v1.GET("/rules/:id/feedback/notes", h.feedbackNotes)

		v1.GET("/effectiveness/summary", h.effectivenessSummary)
		v1.GET("/rules/:id/effectiveness", h.ruleEffectiveness)
		v1.DELETE("/effectiveness", h.resetEffectiveness)

		v1.GET("/rules/:id/improvements", h.ruleImprovements)
		v1.GET("/improvements/high-priority", h.highPriorityImprovements)
		v1.GET("/improvements", h.improvementsByCategory)

		v1.POST("/rules/:id/optimize", h.optimize)
		v1.POST("/rules/:id/optimize/apply", h.applyOptimization)
		v1.GET("/rules/:id/optimizations/best", h.bestOptimization)
		v1.GET("/rules/:id/optimizations/summary", h.optimizationSummary)
		v1.GET("/rules/:id/optimizations/export", h.exportHistory)
		v1.POST("/rules/:id/optimizations/import", h.importHistory)
	}
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) addRule(c *gin.Context) {
	var rule models.ValidationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.AddRule(&rule); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule.Clone())
}

func (h *Handlers) listRules(c *gin.Context) {
	if cat := c.Query("category"); cat != "" {
		category := models.Category(cat)
		if !category.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category " + cat})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rules": cloneRules(h.manager.RulesByCategory(category))})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": cloneRules(h.manager.Registry().All())})
}

func (h *Handlers) getRule(c *gin.Context) {
	rule, err := h.manager.GetRule(c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule.Clone())
}

func (h *Handlers) updateRule(c *gin.Context) {
	var update services.RuleUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.UpdateRule(c.Param("id"), update); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) removeRule(c *gin.Context) {
	if err := h.manager.RemoveRule(c.Param("id")); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type validateRequest struct {
	Input      map[string]any    `json:"input" binding:"required"`
	Categories []models.Category `json:"categories,omitempty"`
}

func (h *Handlers) validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	summary, err := h.manager.Validate(c.Request.Context(), req.Input, req.Categories)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

type feedbackRequest struct {
	Positive *bool  `json:"positive" binding:"required"`
	Text     string `json:"text,omitempty"`
}

func (h *Handlers) addFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.AddRuleFeedback(c.Request.Context(), c.Param("id"), *req.Positive, req.Text); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) feedbackNotes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notes": h.manager.FeedbackNotes(c.Param("id"))})
}

func (h *Handlers) effectivenessSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.EffectivenessSummary())
}

func (h *Handlers) ruleEffectiveness(c *gin.Context) {
	eff, err := h.manager.RuleEffectiveness(c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, eff)
}

func (h *Handlers) resetEffectiveness(c *gin.Context) {
	if err := h.manager.ResetEffectiveness(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ruleImprovements(c *gin.Context) {
	improvements, err := h.manager.RuleImprovements(c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"improvements": improvements})
}

func (h *Handlers) highPriorityImprovements(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"improvements": h.manager.HighPriorityImprovements()})
}

func (h *Handlers) improvementsByCategory(c *gin.Context) {
	category := models.Category(c.Query("category"))
	if !category.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category " + string(category)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"improvements": h.manager.ImprovementsByCategory(category)})
}

type optimizeRequest struct {
	Strategy models.OptimizationStrategy `json:"strategy" binding:"required"`
}

func (h *Handlers) optimize(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := h.manager.OptimizeRuleParameters(c.Request.Context(), c.Param("id"), req.Strategy)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handlers) applyOptimization(c *gin.Context) {
	var result models.OptimizationResult
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applied, err := h.manager.ApplyOptimization(c.Param("id"), result)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

func (h *Handlers) bestOptimization(c *gin.Context) {
	best, ok := h.manager.BestOptimization(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no optimization history"})
		return
	}
	c.JSON(http.StatusOK, best)
}

func (h *Handlers) optimizationSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.OptimizationSummary(c.Param("id")))
}

func (h *Handlers) exportHistory(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	data, err := h.manager.ExportOptimizationHistory(c.Param("id"), format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	contentType := "application/json"
	if format == "csv" {
		contentType = "text/csv"
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handlers) importHistory(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.manager.ImportOptimizationHistory(c.Request.Context(), c.Param("id"), format, data); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// statusForError maps the engine's error taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrDuplicateRule):
		return http.StatusConflict
	case errors.Is(err, rules.ErrDependency):
		return http.StatusConflict
	case errors.Is(err, rules.ErrInvalidParameter), errors.Is(err, rules.ErrRuleMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func cloneRules(list []*models.ValidationRule) []*models.ValidationRule {
	out := make([]*models.ValidationRule, 0, len(list))
	for _, rule := range list {
		out = append(out, rule.Clone())
	}
	return out
}
