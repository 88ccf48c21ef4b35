package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"contracts-rag/internal/ai"
	"contracts-rag/internal/insight"
	"contracts-rag/internal/model"
	"contracts-rag/internal/pkg/jwtutil"
	"contracts-rag/internal/pkg/vectorcodec"
	"contracts-rag/internal/platform/database"
	"contracts-rag/internal/ranking"
	"contracts-rag/internal/repository"
)

// stubEmbedder returns fixed vectors for known texts and a constant vector otherwise.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	other   []float32
	err     error
	calls   int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.other, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.IngestEvent
}

func (p *recordingPublisher) PublishIngestEvent(ctx context.Context, event model.IngestEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type stubCompleter struct {
	answer string
	err    error
	got    []ai.ChatMessage
}

func (c *stubCompleter) Complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	c.got = messages
	return c.answer, c.err
}

type fixture struct {
	contracts *ContractService
	retrieval *RetrievalService
	chunks    *repository.ChunkRepository
	docs      *repository.DocumentRepository
	users     *repository.UserRepository
	embedder  *stubEmbedder
	events    *recordingPublisher
}

func newFixture(t *testing.T, opts ContractOptions, ropts RetrievalOptions, completer Completer) *fixture {
	t.Helper()
	db, err := database.New(context.Background(), "sqlite", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	f := &fixture{
		chunks:   repository.NewChunkRepository(db),
		docs:     repository.NewDocumentRepository(db),
		users:    repository.NewUserRepository(db),
		embedder: &stubEmbedder{vectors: map[string][]float32{}, other: []float32{0, 1}},
		events:   &recordingPublisher{},
	}
	codec := vectorcodec.New(2)
	f.contracts = NewContractService(f.docs, f.chunks, f.embedder, codec, insight.Default(), f.events, opts)
	f.retrieval = NewRetrievalService(f.chunks, f.embedder, ranking.NewRanker(codec), completer, ropts)
	return f
}

func (f *fixture) addText(t *testing.T, userID uint, name, content string) *IngestResult {
	t.Helper()
	res, err := f.contracts.CreateFromText(context.Background(), TextInput{
		ContractInput: ContractInput{UserID: userID, Filename: name},
		Content:       content,
	})
	require.NoError(t, err)
	return res
}

func TestAnswer_EmptyCorpus(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{}, nil)

	res, err := f.retrieval.Answer(context.Background(), 7, "What is the notice period?")
	require.NoError(t, err)
	assert.Equal(t, NoContractsAnswer, res.Answer)
	assert.NotNil(t, res.Citations)
	assert.Empty(t, res.Citations)
	assert.Zero(t, f.embedder.calls)
}

func TestAnswer_InvalidInput(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{}, nil)

	_, err := f.retrieval.Answer(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.retrieval.Answer(context.Background(), 0, "q")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAnswer_RanksOnlyOwnChunks(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{TopK: 3}, nil)
	f.embedder.vectors["Either party may terminate with 90 days notice."] = []float32{1, 0}
	f.embedder.vectors["Invoices are due within 30 days."] = []float32{0.6, 0.8}
	f.embedder.vectors["Other tenant termination clause."] = []float32{1, 0}
	f.embedder.vectors["termination notice?"] = []float32{1, 0}

	msa := f.addText(t, 1, "msa.txt", "Either party may terminate with 90 days notice.")
	inv := f.addText(t, 1, "invoice.txt", "Invoices are due within 30 days.")
	f.addText(t, 2, "foreign.txt", "Other tenant termination clause.")

	res, err := f.retrieval.Answer(context.Background(), 1, "termination notice?")
	require.NoError(t, err)
	require.Len(t, res.Citations, 2)

	assert.Equal(t, msa.Document.ID, res.Citations[0].DocumentID)
	assert.InDelta(t, 1.0, res.Citations[0].Score, 1e-9)
	assert.Equal(t, 100.0, res.Citations[0].RelevanceScore)
	assert.Equal(t, "msa.txt", res.Citations[0].Metadata["contract_name"])
	assert.EqualValues(t, 1, res.Citations[0].Metadata["page"])

	assert.Equal(t, inv.Document.ID, res.Citations[1].DocumentID)
	assert.Equal(t, 60.0, res.Citations[1].RelevanceScore)

	assert.Equal(t, "Based on your contracts, here's what I found regarding 'termination notice?': The most relevant clauses indicate specific terms and conditions that apply to your situation.", res.Answer)
}

func TestAnswer_MalformedEmbeddingGetsFallbackScore(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{TopK: 3}, nil)
	f.embedder.vectors["good"] = []float32{1, 0}
	f.embedder.vectors["weak"] = []float32{0.1, 1}
	f.embedder.vectors["q"] = []float32{1, 0}

	doc := f.addText(t, 1, "a.txt", "good")
	f.addText(t, 1, "b.txt", "weak")
	require.NoError(t, f.chunks.Insert(context.Background(), &model.Chunk{
		DocumentID: doc.Document.ID,
		UserID:     1,
		Seq:        99,
		Text:       "legacy chunk",
		Embedding:  "not-a-vector",
	}))

	res, err := f.retrieval.Answer(context.Background(), 1, "q")
	require.NoError(t, err)
	require.Len(t, res.Citations, 3)
	assert.Equal(t, "good", res.Citations[0].Text)
	assert.Equal(t, "legacy chunk", res.Citations[1].Text)
	assert.Equal(t, 50.0, res.Citations[1].RelevanceScore)
	assert.Equal(t, "weak", res.Citations[2].Text)
	assert.NotNil(t, res.Citations[1].Metadata)
	assert.False(t, res.Citations[0].Fallback)
	assert.True(t, res.Citations[1].Fallback)
	assert.False(t, res.Citations[2].Fallback)
}

func TestCreateFromText_DimensionMismatchRollsBack(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{}, nil)
	ctx := context.Background()
	wide := vectorcodec.New(4)
	contracts := NewContractService(f.docs, f.chunks, f.embedder, wide, insight.Default(), f.events, ContractOptions{})

	_, err := contracts.CreateFromText(ctx, TextInput{
		ContractInput: ContractInput{UserID: 1, Filename: "a.txt"},
		Content:       "Payment is due monthly.",
	})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	docs, err := contracts.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, docs)
	chunks, err := f.chunks.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Empty(t, f.events.events)
}

func TestAnswer_QuestionDimensionMismatch(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{}, nil)
	f.addText(t, 1, "a.txt", "Payment terms apply.")
	retrieval := NewRetrievalService(f.chunks, f.embedder, ranking.NewRanker(vectorcodec.New(4)), nil, RetrievalOptions{})

	_, err := retrieval.Answer(context.Background(), 1, "payment?")
	assert.ErrorIs(t, err, ErrRetrievalFailed)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestAnswer_EmbeddingUnavailable(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{}, nil)
	f.addText(t, 1, "a.txt", "Payment terms apply.")
	f.embedder.fail(errors.New("connection refused"))

	_, err := f.retrieval.Answer(context.Background(), 1, "payment?")
	assert.ErrorIs(t, err, ErrRetrievalFailed)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestAnswer_LLMMode(t *testing.T) {
	completer := &stubCompleter{answer: "  Notice is 90 days.  "}
	f := newFixture(t, ContractOptions{}, RetrievalOptions{AnswerMode: AnswerModeLLM}, completer)
	f.addText(t, 1, "msa.txt", "Either party may terminate with 90 days notice.")

	res, err := f.retrieval.Answer(context.Background(), 1, "notice?")
	require.NoError(t, err)
	assert.Equal(t, "Notice is 90 days.", res.Answer)
	require.Len(t, completer.got, 2)
	assert.Contains(t, completer.got[1].Content, "Either party may terminate")
	assert.Contains(t, completer.got[1].Content, "[msa.txt, page 1]")

	completer.err = errors.New("rate limited")
	res, err = f.retrieval.Answer(context.Background(), 1, "notice?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Answer, "Based on your contracts"))
}

func TestUpload_PlainTextDefaults(t *testing.T) {
	f := newFixture(t, ContractOptions{ChunkSize: 20, ChunkOverlap: 0}, RetrievalOptions{}, nil)

	before := time.Now().UTC()
	res, err := f.contracts.Upload(context.Background(), UploadInput{
		ContractInput: ContractInput{UserID: 1, Filename: "msa.txt"},
		ContentType:   "text/plain",
		Data:          []byte("This agreement is confidential between both parties."),
	})
	require.NoError(t, err)

	doc := res.Document
	assert.Equal(t, "msa.txt", doc.ContractName)
	assert.Equal(t, "Company A, Company B", doc.Parties)
	assert.Equal(t, model.StatusActive, doc.Status)
	assert.Equal(t, model.RiskMedium, doc.RiskScore)
	assert.WithinDuration(t, before.Add(model.DefaultValidity), doc.ExpiryDate, time.Minute)
	assert.Equal(t, 3, res.ChunkCount)

	chunks, err := f.chunks.ListByDocument(context.Background(), doc.ID, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.NotEmpty(t, c.Embedding)
		assert.EqualValues(t, i, c.Metadata["chunk_index"])
		assert.Equal(t, "msa.txt", c.Metadata["filename"])
	}

	require.Len(t, f.events.events, 1)
	assert.Equal(t, model.EventDocumentIngested, f.events.events[0].Kind)
	assert.Equal(t, 3, f.events.events[0].ChunkCount)
}

func TestUpload_RejectsBeforeWriting(t *testing.T) {
	f := newFixture(t, ContractOptions{MaxUploadBytes: 16}, RetrievalOptions{}, nil)
	ctx := context.Background()

	_, err := f.contracts.Upload(ctx, UploadInput{
		ContractInput: ContractInput{UserID: 1, Filename: "scan.png"},
		ContentType:   "image/png",
		Data:          []byte{0x89, 'P', 'N', 'G'},
	})
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = f.contracts.Upload(ctx, UploadInput{
		ContractInput: ContractInput{UserID: 1, Filename: "big.txt"},
		ContentType:   "text/plain",
		Data:          []byte(strings.Repeat("x", 17)),
	})
	assert.ErrorIs(t, err, ErrDocumentTooLarge)

	_, err = f.contracts.Upload(ctx, UploadInput{
		ContractInput: ContractInput{UserID: 1, Filename: "blank.txt"},
		ContentType:   "text/plain",
		Data:          []byte("  \n "),
	})
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	docs, err := f.contracts.List(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Zero(t, f.embedder.calls)
}

func TestCreateFromText_EmbeddingFailureRollsBack(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{}, nil)
	f.embedder.fail(errors.New("timeout"))

	_, err := f.contracts.CreateFromText(context.Background(), TextInput{
		ContractInput: ContractInput{UserID: 1, Filename: "a.txt"},
		Content:       "Payment is due monthly.",
	})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)

	docs, err := f.contracts.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, f.events.events)
}

func TestIngest_ReplacesChunkSetAndChecksOwner(t *testing.T) {
	f := newFixture(t, ContractOptions{ChunkSize: 10}, RetrievalOptions{}, nil)
	ctx := context.Background()
	res := f.addText(t, 1, "a.txt", "one two three four five six")

	chunks, err := f.contracts.Ingest(ctx, 1, res.Document.ID, "page one\fpage two")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 2, chunks[1].Metadata["page"])

	stored, err := f.chunks.ListByDocument(ctx, res.Document.ID, 1)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "page one", stored[0].Text)

	_, err = f.contracts.Ingest(ctx, 2, res.Document.ID, "hijack")
	assert.ErrorIs(t, err, ErrContractNotFound)

	_, err = f.contracts.Ingest(ctx, 1, res.Document.ID, " \f ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDetailAndInsights(t *testing.T) {
	f := newFixture(t, ContractOptions{ChunkSize: 40, ChunkOverlap: 0}, RetrievalOptions{}, nil)
	ctx := context.Background()

	content := "Either party may Terminate this agreement on notice. " +
		strings.Repeat("General provisions apply here. ", 5) +
		"PAYMENT is due within thirty days of invoice."
	res := f.addText(t, 1, "msa.txt", content)

	detail, err := f.contracts.Detail(ctx, res.Document.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, res.Document.ID, detail.ID)

	require.Len(t, detail.Clauses, 5)
	for i, c := range detail.Clauses {
		assert.Equal(t, 85+(i*3)%20, c.Confidence)
	}
	assert.Equal(t, "Section 1", detail.Clauses[0].Title)

	require.Len(t, detail.Evidence, 4)
	assert.Equal(t, "Page 1", detail.Evidence[0].Source)
	assert.Equal(t, 0.9, detail.Evidence[0].Relevance)
	assert.Equal(t, 0.7, detail.Evidence[2].Relevance)

	want := []insight.Insight{
		{Type: "termination", Text: "Contract contains termination clauses - review notice periods"},
		{Type: "payment", Text: "Payment terms specified - monitor due dates"},
	}
	assert.Equal(t, want, detail.Insights)

	insights, err := f.contracts.Insights(ctx, res.Document.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, want, insights)

	_, err = f.contracts.Detail(ctx, res.Document.ID, 2)
	assert.ErrorIs(t, err, ErrContractNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{}, nil)
	ctx := context.Background()
	res := f.addText(t, 1, "a.txt", "Liability is capped.")

	assert.ErrorIs(t, f.contracts.Delete(ctx, res.Document.ID, 2), ErrContractNotFound)
	require.NoError(t, f.contracts.Delete(ctx, res.Document.ID, 1))
	assert.ErrorIs(t, f.contracts.Delete(ctx, res.Document.ID, 1), ErrContractNotFound)

	left, err := f.chunks.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, left)

	require.Len(t, f.events.events, 2)
	assert.Equal(t, model.EventDocumentDeleted, f.events.events[1].Kind)
}

func TestAuthService(t *testing.T) {
	f := newFixture(t, ContractOptions{}, RetrievalOptions{}, nil)
	svc := NewAuthService(f.users, "secret", time.Minute)
	svc.bcryptCost = bcrypt.MinCost
	ctx := context.Background()

	_, err := svc.Register(ctx, Credentials{Username: "alice", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	reg, err := svc.Register(ctx, Credentials{Username: " alice ", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice", reg.User.Username)

	claims, err := jwtutil.ParseToken("secret", reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)

	_, err = svc.Register(ctx, Credentials{Username: "alice", Password: "another-pass"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, err = svc.Login(ctx, Credentials{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = svc.Login(ctx, Credentials{Username: "nobody", Password: "whatever1"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	login, err := svc.Login(ctx, Credentials{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)

	user, err := svc.GetUserByID(ctx, reg.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
}
