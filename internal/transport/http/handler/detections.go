package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dermascan-gateway/internal/model"
	"dermascan-gateway/internal/transport/http/response"
)

type DetectionLister interface {
	ListRecent(ctx context.Context, limit int) ([]model.Detection, error)
}

type DetectionHandler struct {
	lister DetectionLister
}

func NewDetectionHandler(lister DetectionLister) *DetectionHandler {
	return &DetectionHandler{lister: lister}
}

// List returns persisted detections, newest first.
func (h *DetectionHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	detections, err := h.lister.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list detections failed")
		return
	}
	if detections == nil {
		detections = []model.Detection{}
	}
	response.OK(c, detections)
}
