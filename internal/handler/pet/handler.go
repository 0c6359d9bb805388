package pet

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawtrack/pawtrack-api/internal/handler"
	"github.com/pawtrack/pawtrack-api/internal/model"
	"github.com/pawtrack/pawtrack-api/internal/service/pet"
)

type Handler struct {
	service *pet.Service
}

func NewHandler(service *pet.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	pets := r.Group("/pets")
	{
		pets.POST("", h.CreatePet)
		pets.GET("", h.ListPets)
		pets.GET("/:id", h.GetPet)
		pets.PUT("/:id", h.UpdatePet)
		pets.DELETE("/:id", h.DeletePet)
	}
}

func (h *Handler) CreatePet(c *gin.Context) {
	orgID, ok := handler.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	var req model.CreatePetRequest
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

func (h *Handler) GetPet(c *gin.Context) {
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

func (h *Handler) ListPets(c *gin.Context) {
	orgID, ok := handler.OrganizationID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing organization context"))
		return
	}

	pets, err := h.service.List(c.Request.Context(), orgID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(pets))
}

func (h *Handler) UpdatePet(c *gin.Context) {
	orgID, id, ok := h.tenantAndID(c)
	if !ok {
		return
	}

	var req model.UpdatePetRequest
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

func (h *Handler) DeletePet(c *gin.Context) {
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
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid pet ID"))
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, id, true
}
