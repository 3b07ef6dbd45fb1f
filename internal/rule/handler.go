package rule

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trackerbridge/internal/logger"
	"trackerbridge/pkg/errors"
)

// Handler exposes rule management over the admin API.
type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		rules := v1.Group("/rules/transform")
		{
			rules.GET("", h.ListRules)
			rules.POST("", h.CreateRule)
			rules.GET("/:id", h.GetRule)
			rules.PUT("/:id", h.UpdateRule)
			rules.DELETE("/:id", h.DeleteRule)
			rules.POST("/reload", h.ReloadRules)
		}
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

// ListRules godoc
// @Summary      List all transform rules
// @Description  Get a list of all transform rules
// @Tags         transform-rules
// @Accept       json
// @Produce      json
// @Success      200  {array}    Rule
// @Failure      500  {object}  map[string]interface{}
// @Router       /rules/transform [get]
func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.service.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule godoc
// @Summary      Create a new transform rule
// @Description  Create a new transform rule with the provided data
// @Tags         transform-rules
// @Accept       json
// @Produce      json
// @Param        rule  body       CreateRuleRequest  true  "Transform rule data"
// @Success      201   {object}   Rule
// @Failure      400   {object}  map[string]interface{}
// @Failure      409   {object}  map[string]interface{}
// @Failure      500   {object}  map[string]interface{}
// @Router       /rules/transform [post]
func (h *Handler) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// GetRule godoc
// @Summary      Get a transform rule by ID
// @Description  Get a specific transform rule by its ID
// @Tags         transform-rules
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}   Rule
// @Failure      404  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /rules/transform/{id} [get]
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule godoc
// @Summary      Update a transform rule
// @Description  Update an existing transform rule by ID
// @Tags         transform-rules
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Rule ID"
// @Param        rule  body       UpdateRuleRequest  true  "Updated rule data"
// @Success      200   {object}   Rule
// @Failure      400   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]interface{}
// @Failure      500   {object}  map[string]interface{}
// @Router       /rules/transform/{id} [put]
func (h *Handler) UpdateRule(c *gin.Context) {
	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule godoc
// @Summary      Delete a transform rule
// @Description  Delete a transform rule by ID
// @Tags         transform-rules
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Rule ID"
// @Success      204  "No Content"
// @Failure      404  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /rules/transform/{id} [delete]
func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReloadRules forces an immediate cache refresh, bypassing the jitter.
// @Summary      Reload the active rule set
// @Description  Force an immediate refresh of the cached active rules
// @Tags         transform-rules
// @Produce      json
// @Success      204  "No Content"
// @Failure      500  {object}  map[string]interface{}
// @Router       /rules/transform/reload [post]
func (h *Handler) ReloadRules(c *gin.Context) {
	if err := h.service.ReloadRules(c.Request.Context(), true); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
