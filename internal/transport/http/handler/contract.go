package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"contracts-rag/internal/app"
	"contracts-rag/internal/transport/http/response"
)

type ContractHandler struct {
	contractService *app.ContractService
	maxUploadBytes  int64
}

type CreateTextContractRequest struct {
	Name         string `json:"name" binding:"max=256"`
	Content      string `json:"content" binding:"required"`
	ContractName string `json:"contract_name" binding:"max=256"`
	Parties      string `json:"parties" binding:"max=512"`
	ExpiryDate   string `json:"expiry_date"`
}

func NewContractHandler(contractService *app.ContractService, maxUploadBytes int64) *ContractHandler {
	return &ContractHandler{contractService: contractService, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart form with "file" (PDF, DOCX or text) and the optional
// fields contract_name, parties and expiry_date.
func (h *ContractHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeDocumentTooLarge, app.ErrDocumentTooLarge.Error())
		return
	}
	expiry, err := parseExpiry(c.PostForm("expiry_date"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid expiry_date")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	result, err := h.contractService.Upload(c.Request.Context(), app.UploadInput{
		ContractInput: app.ContractInput{
			UserID:       userID,
			Filename:     file.Filename,
			ContractName: c.PostForm("contract_name"),
			Parties:      c.PostForm("parties"),
			ExpiryDate:   expiry,
		},
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeContractError(c, err, "upload contract failed")
		return
	}
	c.JSON(http.StatusCreated, response.APIResponse{Code: response.CodeOK, Message: "ok", Data: result})
}

func (h *ContractHandler) CreateFromText(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateTextContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	expiry, err := parseExpiry(req.ExpiryDate)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid expiry_date")
		return
	}

	result, err := h.contractService.CreateFromText(c.Request.Context(), app.TextInput{
		ContractInput: app.ContractInput{
			UserID:       userID,
			Filename:     req.Name,
			ContractName: req.ContractName,
			Parties:      req.Parties,
			ExpiryDate:   expiry,
		},
		Content: req.Content,
	})
	if err != nil {
		writeContractError(c, err, "ingest contract failed")
		return
	}
	c.JSON(http.StatusCreated, response.APIResponse{Code: response.CodeOK, Message: "ok", Data: result})
}

func (h *ContractHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.contractService.List(c.Request.Context(), userID)
	if err != nil {
		writeContractError(c, err, "list contracts failed")
		return
	}
	response.OK(c, docs)
}

func (h *ContractHandler) Detail(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	detail, err := h.contractService.Detail(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeContractError(c, err, "get contract failed")
		return
	}
	response.OK(c, detail)
}

func (h *ContractHandler) Insights(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	insights, err := h.contractService.Insights(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		writeContractError(c, err, "get insights failed")
		return
	}
	response.OK(c, insights)
}

func (h *ContractHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	if err := h.contractService.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		writeContractError(c, err, "delete contract failed")
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

func writeContractError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnsupportedDocument):
		response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedDocument, err.Error())
	case errors.Is(err, app.ErrDocumentTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeDocumentTooLarge, err.Error())
	case errors.Is(err, app.ErrContractNotFound):
		response.Error(c, http.StatusNotFound, response.CodeContractNotFound, err.Error())
	case errors.Is(err, app.ErrEmbeddingUnavailable):
		log.Printf("%s: %v", fallback, err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, app.ErrEmbeddingUnavailable.Error())
	default:
		log.Printf("%s: %v", fallback, err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

// parseExpiry accepts RFC 3339 timestamps or plain dates. Empty means unset.
func parseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("unrecognized date format")
}
