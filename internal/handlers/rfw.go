package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/internal/middleware"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/response"
)

type RFWHandler struct {
	rfwService *services.RFWService
}

func NewRFWHandler(rfwService *services.RFWService) *RFWHandler {
	return &RFWHandler{rfwService: rfwService}
}

// GET /api/v1/rfws
func (h *RFWHandler) List(c *gin.Context) {
	rfws, err := h.rfwService.List(c.Request.Context(), middleware.Actor(c))
	reply(c, rfws, err)
}

// GET /api/v1/rfws/:id
func (h *RFWHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	r, err := h.rfwService.Get(c.Request.Context(), middleware.Actor(c), id)
	reply(c, r, err)
}

// POST /api/v1/rfws
func (h *RFWHandler) Create(c *gin.Context) {
	var req services.RFWRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.rfwService.Create(c.Request.Context(), middleware.Actor(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, r)
}

// PUT /api/v1/rfws/:id
func (h *RFWHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.RFWRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.rfwService.Update(c.Request.Context(), middleware.Actor(c), id, &req)
	reply(c, r, err)
}

// DELETE /api/v1/rfws/:id
func (h *RFWHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.rfwService.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "rfw deleted"})
}

func (h *RFWHandler) status(c *gin.Context, fn func(id uint) (*models.RFW, error)) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	r, err := fn(id)
	reply(c, r, err)
}

// PUT /api/v1/rfws/:id/publish
func (h *RFWHandler) Publish(c *gin.Context) {
	h.status(c, func(id uint) (*models.RFW, error) {
		return h.rfwService.Publish(c.Request.Context(), middleware.Actor(c), id)
	})
}

// PUT /api/v1/rfws/:id/close
func (h *RFWHandler) Close(c *gin.Context) {
	h.status(c, func(id uint) (*models.RFW, error) {
		return h.rfwService.Close(c.Request.Context(), middleware.Actor(c), id)
	})
}

type WorkRequest struct {
	StatusMessage string `json:"statusMessage"`
}

// RequestWork asks to work on a bounty
// POST /api/v1/rfws/:id/worker/request
func (h *RFWHandler) RequestWork(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req WorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.rfwService.RequestWork(c.Request.Context(), middleware.Actor(c), id, req.StatusMessage)
	reply(c, r, err)
}

type ReviewRequest struct {
	IsAccept bool   `json:"isAccept"`
	Message  string `json:"message"`
}

// PUT /api/v1/rfws/:id/worker/:workerId/accept
func (h *RFWHandler) ReviewWorker(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	workerID, ok := paramID(c, "workerId")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.rfwService.ReviewWorker(c.Request.Context(), middleware.Actor(c), id, workerID, req.IsAccept, req.Message)
	reply(c, r, err)
}

type ClaimRequest struct {
	Message string `json:"message"`
	URL     string `json:"url"`
}

// Claim files a milestone claim for an accepted worker
// POST /api/v1/rfws/:id/milestone/:msId/worker/:workerId
func (h *RFWHandler) Claim(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	msID, ok := paramID(c, "msId")
	if !ok {
		return
	}
	workerID, ok := paramID(c, "workerId")
	if !ok {
		return
	}
	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.rfwService.Claim(c.Request.Context(), middleware.Actor(c), id, msID, workerID, req.Message, req.URL)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, r)
}

// PUT /api/v1/rfws/:id/milestone/:msId/accept/:claimId
func (h *RFWHandler) ReviewClaim(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	msID, ok := paramID(c, "msId")
	if !ok {
		return
	}
	claimID, ok := paramID(c, "claimId")
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	r, err := h.rfwService.ReviewClaim(c.Request.Context(), middleware.Actor(c), id, msID, claimID, req.IsAccept, req.Message)
	reply(c, r, err)
}
