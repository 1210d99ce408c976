package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"taskboard/internal/auth"
	dom "taskboard/internal/domain"
	"taskboard/internal/dto"
	"taskboard/internal/service"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	svc *service.TaskService
}

func NewTaskHandler(svc *service.TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// respondError maps the service error set to HTTP. Anything outside the set
// is an internal failure and stays opaque to the client.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidDueDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPosition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoSuggester):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		// The client gets nothing actionable; the log keeps the cause.
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Create godoc
// @Summary      Create a task
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     CookieAuth
// @Param        body  body      dto.CreateTaskRequest  true  "Task body"
// @Success      201   {object}  dto.TaskResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := auth.UserIDFromContext(c)
	t, err := h.svc.Create(c.Request.Context(), userID, req.CategoryID, req.Title, req.Description, req.DueAt.Ptr())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, taskToResponse(t))
}

// List godoc
// @Summary      List tasks in display order
// @Tags         tasks
// @Produce      json
// @Security     CookieAuth
// @Param        category_id  query  int  false  "Filter by category"
// @Success      200  {object}  dto.ListTasksResponse
// @Failure      500  {object}  map[string]string
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	var categoryID *int64
	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id"})
			return
		}
		categoryID = &id
	}
	list, err := h.svc.List(c.Request.Context(), userID, categoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListTasksResponse{Items: tasksToResponses(list)})
}

// GetByID godoc
// @Summary      Get a task by ID
// @Tags         tasks
// @Produce      json
// @Security     CookieAuth
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  dto.TaskResponse
// @Failure      404  {object}  map[string]string
// @Router       /tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.GetByID(c.Request.Context(), auth.UserIDFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(t))
}

// Update godoc
// @Summary      Update a task
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     CookieAuth
// @Param        id    path      int  true  "Task ID"
// @Param        body  body      dto.UpdateTaskRequest  true  "Partial update"
// @Success      200   {object}  dto.TaskResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /tasks/{id} [patch]
func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var duePtr *time.Time
	if req.DueAt != nil {
		duePtr = req.DueAt.Ptr()
	}
	t, err := h.svc.Update(c.Request.Context(), auth.UserIDFromContext(c), id,
		req.Title, req.Description, duePtr, req.IsDone, req.CategoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(t))
}

// Move godoc
// @Summary      Move a task between two siblings
// @Description  Places the task between before_id and after_id in the board
// @Description  ordering, optionally into another category. Omit before_id
// @Description  to insert at the head, after_id to insert at the tail.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Security     CookieAuth
// @Param        id    path      int  true  "Task ID"
// @Param        body  body      dto.MoveTaskRequest  true  "Target neighbors"
// @Success      200   {object}  dto.TaskResponse
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /tasks/{id}/move [post]
func (h *TaskHandler) Move(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req dto.MoveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.svc.Move(c.Request.Context(), auth.UserIDFromContext(c), id,
		req.BeforeID, req.AfterID, req.CategoryID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(t))
}

// Complete godoc
// @Summary      Mark a task as done
// @Tags         tasks
// @Produce      json
// @Security     CookieAuth
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  dto.TaskResponse
// @Failure      404  {object}  map[string]string
// @Router       /tasks/{id}/complete [post]
func (h *TaskHandler) Complete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Complete(c.Request.Context(), auth.UserIDFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskToResponse(t))
}

// Delete godoc
// @Summary      Delete a task
// @Tags         tasks
// @Security     CookieAuth
// @Param        id   path  int  true  "Task ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
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

// Search godoc
// @Summary      Search tasks by query
// @Tags         tasks
// @Produce      json
// @Security     CookieAuth
// @Param        q    query     string  true  "Search query (title/description)"
// @Success      200  {object}  dto.ListTasksResponse
// @Failure      500  {object}  map[string]string
// @Router       /tasks/search [get]
func (h *TaskHandler) Search(c *gin.Context) {
	list, err := h.svc.Search(c.Request.Context(), auth.UserIDFromContext(c), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListTasksResponse{Items: tasksToResponses(list)})
}

// Overdue godoc
// @Summary      List overdue tasks
// @Tags         tasks
// @Produce      json
// @Security     CookieAuth
// @Success      200  {object}  dto.ListTasksResponse
// @Failure      500  {object}  map[string]string
// @Router       /tasks/overdue [get]
func (h *TaskHandler) Overdue(c *gin.Context) {
	list, err := h.svc.Overdue(c.Request.Context(), auth.UserIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ListTasksResponse{Items: tasksToResponses(list)})
}

// Refine godoc
// @Summary      Request AI-generated refinements for a task
// @Tags         tasks
// @Produce      json
// @Security     CookieAuth
// @Param        id   path      int  true  "Task ID"
// @Success      200  {object}  dto.RefineTaskResponse
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /tasks/{id}/refine [post]
func (h *TaskHandler) Refine(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	suggestions, err := h.svc.Refine(c.Request.Context(), auth.UserIDFromContext(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	out := dto.RefineTaskResponse{Suggestions: make([]dto.SuggestionResponse, len(suggestions))}
	for i, s := range suggestions {
		out.Suggestions[i] = dto.SuggestionResponse{Title: s.Title, Description: s.Description}
	}
	c.JSON(http.StatusOK, out)
}

func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func taskToResponse(t dom.Task) dto.TaskResponse {
	return dto.TaskResponse{
		ID:          t.ID,
		CategoryID:  t.CategoryID,
		Title:       t.Title,
		Description: t.Description,
		IsDone:      t.IsDone,
		DueAt:       t.DueAt,
		Position:    t.Position,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func tasksToResponses(list []dom.Task) []dto.TaskResponse {
	out := make([]dto.TaskResponse, len(list))
	for i := range list {
		out[i] = taskToResponse(list[i])
	}
	return out
}
