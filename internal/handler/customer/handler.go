package customer

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawtrack/pawtrack-api/internal/handler"
	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/service/customer"
)

type Handler struct {
	service *customer.Service
}

func NewHandler(service *customer.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	customers := r.Group("/customers")
	{
		customers.POST("", h.CreateCustomer)
		customers.GET("", h.ListCustomers)
		customers.GET("/:id", h.GetCustomer)
		customers.PUT("/:id", h.UpdateCustomer)
		customers.DELETE("/:id", h.DeleteCustomer)
	}
}

func (h *Handler) CreateCustomer(c *gin.Context) {
	orgID, ok := handler.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	var req model.CreateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.Create(c.Request.Context(), orgID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) GetCustomer(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	got, err := h.service.Get(c.Request.Context(), orgID, id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(got))
}

func (h *Handler) ListCustomers(c *gin.Context) {
	orgID, ok := handler.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	customers, err := h.service.List(c.Request.Context(), orgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(customers))
}

func (h *Handler) UpdateCustomer(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	var req model.UpdateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	updated, err := h.service.Update(c.Request.Context(), orgID, id, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func (h *Handler) DeleteCustomer(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), orgID, id); err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) tenantAndID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	orgID, ok := handler.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid customer ID"))
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, id, true
}
