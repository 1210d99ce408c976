package dto

import "time"

type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

type UpdateCategoryRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// MoveCategoryRequest mirrors MoveTaskRequest for the category ordering.
type MoveCategoryRequest struct {
	BeforeID *int64 `json:"before_id"`
	AfterID  *int64 `json:"after_id"`
}

type CategoryResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Position  float64   `json:"position"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ListCategoriesResponse struct {
	Items []CategoryResponse `json:"items"`
}
