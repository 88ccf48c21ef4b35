package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"contracts-rag/internal/insight"
	"contracts-rag/internal/model"
	"contracts-rag/internal/pkg/textextract"
	"contracts-rag/internal/pkg/vectorcodec"
	"contracts-rag/internal/repository"
)

const (
	defaultEmbeddingBatchSize = 10 // hosted embedding APIs often cap the batch size
	defaultParties            = "Company A, Company B"

	clauseCount     = 5
	clauseSnippet   = 150
	evidenceCount   = 4
	evidenceSnippet = 200
)

// Embedder turns text into vectors of one fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EventPublisher announces changes to a user's chunk set.
type EventPublisher interface {
	PublishIngestEvent(ctx context.Context, event model.IngestEvent) error
}

type ContractOptions struct {
	ChunkSize          int
	ChunkOverlap       int
	EmbeddingBatchSize int
	MaxUploadBytes     int64
	DefaultValidity    time.Duration
}

type ContractService struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	embedder  Embedder
	codec     vectorcodec.Codec
	extractor *insight.Extractor
	events    EventPublisher
	opts      ContractOptions
}

func NewContractService(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	embedder Embedder,
	codec vectorcodec.Codec,
	extractor *insight.Extractor,
	events EventPublisher,
	opts ContractOptions,
) *ContractService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = defaultChunkOverlap
	}
	if opts.EmbeddingBatchSize <= 0 {
		opts.EmbeddingBatchSize = defaultEmbeddingBatchSize
	}
	if opts.DefaultValidity <= 0 {
		opts.DefaultValidity = model.DefaultValidity
	}
	if extractor == nil {
		extractor = insight.Default()
	}
	return &ContractService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embedder:  embedder,
		codec:     codec,
		extractor: extractor,
		events:    events,
		opts:      opts,
	}
}

// ContractInput describes a contract to create. Empty optional fields take the
// defaults: contract name = filename, placeholder parties, expiry after
// DefaultValidity.
type ContractInput struct {
	UserID       uint
	Filename     string
	ContractName string
	Parties      string
	ExpiryDate   *time.Time
}

type UploadInput struct {
	ContractInput
	ContentType string
	Data        []byte
}

type TextInput struct {
	ContractInput
	Content string
}

type IngestResult struct {
	Document   model.Document `json:"document"`
	ChunkCount int            `json:"chunk_count"`
}

// Upload extracts the text of a PDF, DOCX or plain-text file and ingests it as a new
// contract. Unsupported files are rejected before anything is stored.
func (s *ContractService) Upload(ctx context.Context, input UploadInput) (*IngestResult, error) {
	if input.UserID == 0 || strings.TrimSpace(input.Filename) == "" {
		return nil, ErrInvalidInput
	}
	if s.opts.MaxUploadBytes > 0 && int64(len(input.Data)) > s.opts.MaxUploadBytes {
		return nil, ErrDocumentTooLarge
	}

	text, err := textextract.Extract(input.Data, input.ContentType, input.Filename)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(strings.ReplaceAll(text, textextract.PageSeparator, "")) == "" {
		return nil, fmt.Errorf("%w: no extractable text in %q", ErrUnsupportedDocument, input.Filename)
	}
	return s.createAndIngest(ctx, input.ContractInput, text)
}

// CreateFromText ingests raw text as a new contract.
func (s *ContractService) CreateFromText(ctx context.Context, input TextInput) (*IngestResult, error) {
	if input.UserID == 0 || strings.TrimSpace(input.Content) == "" {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(input.Filename) == "" {
		input.Filename = "Untitled"
	}
	return s.createAndIngest(ctx, input.ContractInput, input.Content)
}

func (s *ContractService) createAndIngest(ctx context.Context, input ContractInput, text string) (*IngestResult, error) {
	doc := s.newDocument(input)
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}

	chunks, err := s.Ingest(ctx, input.UserID, doc.ID, text)
	if err != nil {
		if _, delErr := s.docRepo.DeleteCascade(context.WithoutCancel(ctx), doc.ID, doc.UserID); delErr != nil {
			log.Printf("rollback document %s failed: %v", doc.ID, delErr)
		}
		return nil, err
	}
	return &IngestResult{Document: *doc, ChunkCount: len(chunks)}, nil
}

func (s *ContractService) newDocument(input ContractInput) *model.Document {
	filename := strings.TrimSpace(input.Filename)
	name := strings.TrimSpace(input.ContractName)
	if name == "" {
		name = filename
	}
	parties := strings.TrimSpace(input.Parties)
	if parties == "" {
		parties = defaultParties
	}
	expiry := time.Now().UTC().Add(s.opts.DefaultValidity)
	if input.ExpiryDate != nil {
		expiry = input.ExpiryDate.UTC()
	}
	return &model.Document{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		Filename:     filename,
		ContractName: name,
		Parties:      parties,
		Status:       model.StatusActive,
		RiskScore:    model.RiskMedium,
		ExpiryDate:   expiry,
	}
}

// Ingest chunks rawText, embeds every chunk and replaces the document's chunk set in
// one batch. Form feeds in rawText separate pages.
func (s *ContractService) Ingest(ctx context.Context, userID uint, docID string, rawText string) ([]model.Chunk, error) {
	if userID == 0 || docID == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(ctx, docID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrContractNotFound
	}

	pieces := splitPages(rawText, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if len(pieces) == 0 {
		return nil, ErrInvalidInput
	}

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.text
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	chunks := make([]model.Chunk, len(pieces))
	for i, p := range pieces {
		encoded, err := s.codec.Encode(vectors[i])
		if err != nil {
			// stored without a vector; ranking gives it the fallback score
			log.Printf("chunk %d of document %s has no usable embedding: %v", i, docID, err)
			encoded = ""
		}
		chunks[i] = model.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			UserID:     userID,
			Seq:        i,
			Text:       p.text,
			Embedding:  encoded,
			Metadata: datatypes.JSONMap{
				"page":          p.page,
				"contract_name": doc.ContractName,
				"filename":      doc.Filename,
				"chunk_index":   p.index,
			},
		}
	}

	if err := s.chunkRepo.InsertBatch(ctx, doc.ID, userID, chunks); err != nil {
		return nil, err
	}

	s.publish(ctx, model.IngestEvent{
		DocumentID: doc.ID,
		UserID:     userID,
		Kind:       model.EventDocumentIngested,
		ChunkCount: len(chunks),
		OccurredAt: time.Now().UTC(),
	})
	return chunks, nil
}

// embedAll calls the embedder in batches to stay within provider limits.
func (s *ContractService) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += s.opts.EmbeddingBatchSize {
		end := i + s.opts.EmbeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
		if len(batch) != end-i {
			return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", ErrEmbeddingUnavailable, len(batch), end-i)
		}
		for j, v := range batch {
			if s.codec.Dim > 0 && len(v) != s.codec.Dim {
				return nil, fmt.Errorf("%w: embedding %d has %d dimensions, want %d", ErrEmbeddingUnavailable, i+j, len(v), s.codec.Dim)
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (s *ContractService) List(ctx context.Context, userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docRepo.ListByUserID(ctx, userID)
}

type Clause struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	Confidence int    `json:"confidence"`
}

type Evidence struct {
	Source    string  `json:"source"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

type ContractDetail struct {
	model.Document
	Clauses  []Clause          `json:"clauses"`
	Insights []insight.Insight `json:"insights"`
	Evidence []Evidence        `json:"evidence"`
}

// Detail returns the contract with its leading clauses, insights and evidence.
func (s *ContractService) Detail(ctx context.Context, docID string, userID uint) (*ContractDetail, error) {
	doc, chunks, err := s.load(ctx, docID, userID)
	if err != nil {
		return nil, err
	}

	detail := &ContractDetail{
		Document: *doc,
		Clauses:  make([]Clause, 0, clauseCount),
		Insights: s.extractor.Extract(joinChunkText(chunks)),
		Evidence: make([]Evidence, 0, evidenceCount),
	}
	for i, c := range chunks {
		if i >= clauseCount {
			break
		}
		detail.Clauses = append(detail.Clauses, Clause{
			Title:      fmt.Sprintf("Section %d", i+1),
			Text:       snippet(c.Text, clauseSnippet),
			Confidence: 85 + (i*3)%20,
		})
	}
	for i, c := range chunks {
		if i >= evidenceCount {
			break
		}
		detail.Evidence = append(detail.Evidence, Evidence{
			Source:    fmt.Sprintf("Page %d", chunkPage(c)),
			Snippet:   snippet(c.Text, evidenceSnippet),
			Relevance: math.Round((0.9-0.1*float64(i))*10) / 10,
		})
	}
	return detail, nil
}

// Insights runs the rule table over the contract's full text.
func (s *ContractService) Insights(ctx context.Context, docID string, userID uint) ([]insight.Insight, error) {
	_, chunks, err := s.load(ctx, docID, userID)
	if err != nil {
		return nil, err
	}
	return s.extractor.Extract(joinChunkText(chunks)), nil
}

// Delete removes the contract and its chunks.
func (s *ContractService) Delete(ctx context.Context, docID string, userID uint) error {
	if userID == 0 || docID == "" {
		return ErrInvalidInput
	}
	deleted, err := s.docRepo.DeleteCascade(ctx, docID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrContractNotFound
	}
	s.publish(ctx, model.IngestEvent{
		DocumentID: docID,
		UserID:     userID,
		Kind:       model.EventDocumentDeleted,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

func (s *ContractService) load(ctx context.Context, docID string, userID uint) (*model.Document, []model.Chunk, error) {
	if userID == 0 || docID == "" {
		return nil, nil, ErrInvalidInput
	}
	doc, err := s.docRepo.GetByIDAndUserID(ctx, docID, userID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, ErrContractNotFound
	}
	chunks, err := s.chunkRepo.ListByDocument(ctx, docID, userID)
	if err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}

func (s *ContractService) publish(ctx context.Context, event model.IngestEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishIngestEvent(ctx, event); err != nil {
		log.Printf("publish %s event for document %s failed: %v", event.Kind, event.DocumentID, err)
	}
}

func joinChunkText(chunks []model.Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, " ")
}

// chunkPage reads the page number from chunk metadata, defaulting to 1.
func chunkPage(c model.Chunk) int {
	switch v := c.Metadata["page"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 1
}
