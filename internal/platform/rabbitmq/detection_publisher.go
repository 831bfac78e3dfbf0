package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"dermascan-gateway/internal/model"
)

// DetectionPublisher enqueues completed detections for the persist worker.
type DetectionPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewDetectionPublisher(conn *amqp.Connection, queueName string) *DetectionPublisher {
	return &DetectionPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *DetectionPublisher) Publish(ctx context.Context, detection model.Detection) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(detection)
	if err != nil {
		return fmt.Errorf("marshal detection payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    detection.DetectionID,
			Timestamp:    time.Now(),
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish detection failed: %w", err)
	}
	return nil
}

// DeclareQueue declares the durable detection queue shared by publisher and worker.
func DeclareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return nil
}
