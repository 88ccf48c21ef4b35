package app

import (
	"errors"

	"contracts-rag/internal/pkg/textextract"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUsernameExists       = errors.New("username already exists")
	ErrInvalidCredential    = errors.New("invalid username or password")
	ErrContractNotFound     = errors.New("contract not found")
	ErrDocumentTooLarge     = errors.New("document exceeds upload limit")
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	ErrRetrievalFailed      = errors.New("retrieval failed")

	// ErrUnsupportedDocument is raised before anything is written.
	ErrUnsupportedDocument = textextract.ErrUnsupportedDocument
)
