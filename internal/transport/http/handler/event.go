package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contracts-rag/internal/repository"
	"contracts-rag/internal/transport/http/response"
)

type EventHandler struct {
	eventRepo *repository.IngestEventRepository
}

func NewEventHandler(eventRepo *repository.IngestEventRepository) *EventHandler {
	return &EventHandler{eventRepo: eventRepo}
}

// List returns the caller's ingest audit trail, newest first.
func (h *EventHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, err := h.eventRepo.ListByUserID(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list events failed")
		return
	}
	response.OK(c, events)
}
