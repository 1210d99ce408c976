package handlers

import (
	"net/http"

	"taskboard/internal/auth"
	dom "taskboard/internal/domain"
	"taskboard/internal/dto"
	"taskboard/internal/service"

	"github.com/gin-gonic/gin"
)

type CategoryHandler struct {
	svc *service.CategoryService
}

func NewCategoryHandler(svc *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

// Create godoc
// @Summary      Create a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     CookieAuth
// @Param        body  body      dto.CreateCategoryRequest  true  "Category body"
// @Success      201   {object}  dto.CategoryResponse
// @Failure      400   {object}  map[string]string
// @Router       /categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	var req dto.CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cat, err := h.svc.Create(c.Request.Context(), auth.UserIDFromContext(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, categoryToResponse(cat))
}

// List godoc
// @Summary      List categories in display order
// @Tags         categories
// @Produce      json
// @Security     CookieAuth
// @Success      200  {object}  dto.ListCategoriesResponse
// @Failure      500  {object}  map[string]string
// @Router       /categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), auth.UserIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := dto.ListCategoriesResponse{Items: make([]dto.CategoryResponse, len(list))}
	for i := range list {
		out.Items[i] = categoryToResponse(list[i])
	}
	c.JSON(http.StatusOK, out)
}

// Update godoc
// @Summary      Rename a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     CookieAuth
// @Param        id    path      int  true  "Category ID"
// @Param        body  body      dto.UpdateCategoryRequest  true  "New name"
// @Success      200   {object}  dto.CategoryResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /categories/{id} [patch]
func (h *CategoryHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cat, err := h.svc.Rename(c.Request.Context(), auth.UserIDFromContext(c), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categoryToResponse(cat))
}

// Delete godoc
// @Summary      Delete a category
// @Description  Tasks in the category are reassigned to the default
// @Description  category. The default category itself cannot be deleted.
// @Tags         categories
// @Security     CookieAuth
// @Param        id   path  int  true  "Category ID"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), auth.UserIDFromContext(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Move godoc
// @Summary      Move a category between two siblings
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     CookieAuth
// @Param        id    path      int  true  "Category ID"
// @Param        body  body      dto.MoveCategoryRequest  true  "Target neighbors"
// @Success      200   {object}  dto.CategoryResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /categories/{id}/move [post]
func (h *CategoryHandler) Move(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.MoveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cat, err := h.svc.Move(c.Request.Context(), auth.UserIDFromContext(c), id, req.BeforeID, req.AfterID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categoryToResponse(cat))
}

func categoryToResponse(c dom.Category) dto.CategoryResponse {
	return dto.CategoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Position:  c.Position,
		IsDefault: c.IsDefault,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}
