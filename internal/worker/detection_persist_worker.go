package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"dermascan-gateway/internal/model"
	"dermascan-gateway/internal/platform/rabbitmq"
)

type DetectionStore interface {
	Create(ctx context.Context, detection *model.Detection) error
}

// DetectionPersistWorker drains the detection queue into the store.
type DetectionPersistWorker struct {
	conn      *amqp.Connection
	store     DetectionStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDetectionPersistWorker(conn *amqp.Connection, store DetectionStore, queueName string) *DetectionPersistWorker {
	return &DetectionPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
	}
}

func (w *DetectionPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	// Detached from the startup context: the worker lives until Close.
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel

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
					log.Printf("detection worker: delivery channel closed")
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					log.Printf("detection worker: %v", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *DetectionPersistWorker) handle(ctx context.Context, body []byte) error {
	var detection model.Detection
	if err := json.Unmarshal(body, &detection); err != nil {
		return fmt.Errorf("decode detection failed: %w", err)
	}
	if detection.DetectionID == "" {
		return fmt.Errorf("decode detection failed: missing detection id")
	}
	detection.ID = 0
	if err := w.store.Create(ctx, &detection); err != nil {
		// A redelivered message was already stored.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("detection worker: %s already persisted", detection.DetectionID)
			return nil
		}
		return err
	}
	return nil
}

func (w *DetectionPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
