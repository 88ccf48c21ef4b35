package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"contracts-rag/internal/model"
	"contracts-rag/internal/platform/rabbitmq"
	"contracts-rag/internal/repository"
)

// IngestEventWorker consumes ingest events from RabbitMQ and stores them as the audit
// trail.
type IngestEventWorker struct {
	conn      *amqp.Connection
	repo      *repository.IngestEventRepository
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestEventWorker(conn *amqp.Connection, repo *repository.IngestEventRepository, queueName string) *IngestEventWorker {
	return &IngestEventWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *IngestEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					log.Printf("ingest event worker: %v", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *IngestEventWorker) handle(ctx context.Context, body []byte) error {
	var event model.IngestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode event failed: %w", err)
	}
	if event.DocumentID == "" || event.UserID == 0 || event.Kind == "" {
		return fmt.Errorf("incomplete event for document %q", event.DocumentID)
	}
	event.ID = 0
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return w.repo.Create(ctx, &event)
}

func (w *IngestEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// InlineRecorder stores events directly when no broker is configured.
type InlineRecorder struct {
	repo *repository.IngestEventRepository
}

func NewInlineRecorder(repo *repository.IngestEventRepository) *InlineRecorder {
	return &InlineRecorder{repo: repo}
}

func (r *InlineRecorder) PublishIngestEvent(ctx context.Context, event model.IngestEvent) error {
	event.ID = 0
	return r.repo.Create(ctx, &event)
}
