package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/internal/middleware"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/response"
)

type TagHandler struct {
	tagService *services.TagService
}

func NewTagHandler(tagService *services.TagService) *TagHandler {
	return &TagHandler{tagService: tagService}
}

// GET /api/v1/tags
func (h *TagHandler) List(c *gin.Context) {
	tags, err := h.tagService.List(c.Request.Context())
	reply(c, tags, err)
}

// Upsert creates a tag or updates the one with the same text
// PUT /api/v1/tags
func (h *TagHandler) Upsert(c *gin.Context) {
	var req services.TagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	tag, err := h.tagService.Upsert(c.Request.Context(), middleware.Actor(c), &req)
	reply(c, tag, err)
}

// DELETE /api/v1/tags/:id
func (h *TagHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.tagService.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "tag deleted"})
}
