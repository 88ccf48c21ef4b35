package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"contracts-rag/internal/ai"
	"contracts-rag/internal/ranking"
	"contracts-rag/internal/repository"
)

const (
	defaultTopK = 3

	AnswerModeTemplate = "template"
	AnswerModeLLM      = "llm"

	NoContractsAnswer = "No contracts found. Please upload some contracts first."
)

// Completer produces a chat completion for the llm answer mode.
type Completer interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

type RetrievalOptions struct {
	TopK       int
	AnswerMode string
}

type RetrievalService struct {
	chunkRepo *repository.ChunkRepository
	embedder  Embedder
	ranker    *ranking.Ranker
	completer Completer
	opts      RetrievalOptions
}

func NewRetrievalService(
	chunkRepo *repository.ChunkRepository,
	embedder Embedder,
	ranker *ranking.Ranker,
	completer Completer,
	opts RetrievalOptions,
) *RetrievalService {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.AnswerMode == "" {
		opts.AnswerMode = AnswerModeTemplate
	}
	return &RetrievalService{
		chunkRepo: chunkRepo,
		embedder:  embedder,
		ranker:    ranker,
		completer: completer,
		opts:      opts,
	}
}

type Citation struct {
	ChunkID        string                 `json:"chunk_id"`
	DocumentID     string                 `json:"doc_id"`
	Text           string                 `json:"text"`
	Metadata       map[string]interface{} `json:"metadata"`
	Score          float64                `json:"score"`
	RelevanceScore float64                `json:"relevance_score"`
	Fallback       bool                   `json:"fallback"`
}

type AnswerResult struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"chunks"`
}

// Answer ranks the user's chunks against the question and cites the best ones. Only
// chunks owned by userID are ever considered.
func (s *RetrievalService) Answer(ctx context.Context, userID uint, question string) (*AnswerResult, error) {
	question = strings.TrimSpace(question)
	if userID == 0 || question == "" {
		return nil, ErrInvalidInput
	}

	candidates, err := s.chunkRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
	if len(candidates) == 0 {
		return &AnswerResult{Answer: NoContractsAnswer, Citations: []Citation{}}, nil
	}

	query, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrRetrievalFailed, ErrEmbeddingUnavailable, err)
	}
	if dim := s.ranker.Dimension(); dim > 0 && len(query) != dim {
		return nil, fmt.Errorf("%w: %w: question embedding has %d dimensions, want %d", ErrRetrievalFailed, ErrEmbeddingUnavailable, len(query), dim)
	}

	ranked := s.ranker.Rank(query, candidates, s.opts.TopK)
	citations := make([]Citation, len(ranked))
	for i, r := range ranked {
		md := map[string]interface{}(r.Chunk.Metadata)
		if md == nil {
			md = map[string]interface{}{}
		}
		citations[i] = Citation{
			ChunkID:        r.Chunk.ID,
			DocumentID:     r.Chunk.DocumentID,
			Text:           r.Chunk.Text,
			Metadata:       md,
			Score:          r.Score,
			RelevanceScore: r.Relevance(),
			Fallback:       r.Fallback,
		}
	}

	return &AnswerResult{
		Answer:    s.compose(ctx, question, citations),
		Citations: citations,
	}, nil
}

func (s *RetrievalService) compose(ctx context.Context, question string, citations []Citation) string {
	fallback := templateAnswer(question)
	if s.opts.AnswerMode != AnswerModeLLM || s.completer == nil {
		return fallback
	}

	var contextBlock strings.Builder
	for _, c := range citations {
		contextBlock.WriteString("\n---\n")
		if name, ok := c.Metadata["contract_name"].(string); ok && name != "" {
			fmt.Fprintf(&contextBlock, "[%s, page %v]\n", name, c.Metadata["page"])
		}
		contextBlock.WriteString(c.Text)
	}
	contextBlock.WriteString("\n---")

	messages := []ai.ChatMessage{
		{Role: "system", Content: "You are a contract analyst. Answer the user's question based only on the following contract excerpts. If they do not contain enough information, say so. Do not make up facts."},
		{Role: "user", Content: "Excerpts:" + contextBlock.String() + "\n\nQuestion: " + question + "\n\nAnswer:"},
	}
	answer, err := s.completer.Complete(ctx, messages)
	if err != nil || strings.TrimSpace(answer) == "" {
		log.Printf("compose llm answer failed, using template: %v", err)
		return fallback
	}
	return strings.TrimSpace(answer)
}

func templateAnswer(question string) string {
	return fmt.Sprintf("Based on your contracts, here's what I found regarding '%s': The most relevant clauses indicate specific terms and conditions that apply to your situation.", question)
}
