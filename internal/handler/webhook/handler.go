// Package webhook exposes the tenant-facing endpoint configuration API: CRUD
// over endpoints, the delivery log, the event catalog, and the test-ping
// utility.
package webhook

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawtrack/pawtrack-api/internal/handler"
	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/service/webhook"
	"github.com/pawtrack/pawtrack-api/pkg/event"
)

type Handler struct {
	service *webhook.Service
}

func NewHandler(service *webhook.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("", h.CreateWebhook)
		webhooks.GET("", h.ListWebhooks)
		webhooks.GET("/events", h.ListEventTypes)
		webhooks.GET("/:id", h.GetWebhook)
		webhooks.PATCH("/:id", h.UpdateWebhook)
		webhooks.DELETE("/:id", h.DeleteWebhook)
		webhooks.POST("/:id/test", h.TestWebhook)
		webhooks.GET("/:id/deliveries", h.ListDeliveries)
	}
}

func (h *Handler) CreateWebhook(c *gin.Context) {
	orgID, ok := handler.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	var req model.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.CreateEndpoint(c.Request.Context(), orgID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) ListWebhooks(c *gin.Context) {
	orgID, ok := handler.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	endpoints, err := h.service.ListEndpoints(c.Request.Context(), orgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(endpoints))
}

func (h *Handler) GetWebhook(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	endpoint, err := h.service.GetEndpoint(c.Request.Context(), orgID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(endpoint))
}

func (h *Handler) UpdateWebhook(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	var req model.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	endpoint, err := h.service.UpdateEndpoint(c.Request.Context(), orgID, id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(endpoint))
}

func (h *Handler) DeleteWebhook(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteEndpoint(c.Request.Context(), orgID, id); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

// TestWebhook fires a synchronous test.ping and returns the attempt outcome,
// so operators see the endpoint's actual response inline.
func (h *Handler) TestWebhook(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	// Tenancy check before touching the endpoint.
	if _, err := h.service.GetEndpoint(c.Request.Context(), orgID, id); err != nil {
		handler.RespondError(c, err)
		return
	}

	result := h.service.SendTestWebhook(c.Request.Context(), id)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) ListDeliveries(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	deliveries, err := h.service.ListDeliveries(c.Request.Context(), orgID, id, limit)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(deliveries))
}

// ListEventTypes returns the subscribable event catalog grouped by category.
func (h *Handler) ListEventTypes(c *gin.Context) {
	type eventInfo struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	}

	catalog := make(map[string][]eventInfo)
	for category, types := range event.Categories() {
		for _, t := range types {
			catalog[category] = append(catalog[category], eventInfo{
				Type:        string(t),
				Description: event.Description(t),
			})
		}
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(catalog))
}

func (h *Handler) tenantAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	orgID, ok := handler.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid webhook ID"))
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, id, true
}
