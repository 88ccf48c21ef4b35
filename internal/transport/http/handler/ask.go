package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"contracts-rag/internal/app"
	"contracts-rag/internal/transport/http/response"
)

type AskHandler struct {
	retrievalService *app.RetrievalService
}

type AskRequest struct {
	Question string `json:"question" binding:"required,max=2000"`
}

func NewAskHandler(retrievalService *app.RetrievalService) *AskHandler {
	return &AskHandler{retrievalService: retrievalService}
}

func (h *AskHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.retrievalService.Answer(c.Request.Context(), userID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrEmbeddingUnavailable):
			log.Printf("answer question failed: %v", err)
			response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, app.ErrEmbeddingUnavailable.Error())
		default:
			log.Printf("answer question failed: %v", err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "answer question failed")
		}
		return
	}
	response.OK(c, result)
}
