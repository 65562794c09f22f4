package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"regdesk/internal/config"
	"regdesk/internal/models"
)

type Producer struct {
	created *kafka.Writer
	paid    *kafka.Writer
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	return &Producer{
		created: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   topics.OrderCreated,
		}),
		paid: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   topics.OrderPaid,
		}),
	}
}

// PublishOrderCreated streams the order creation event to Kafka.
func (p *Producer) PublishOrderCreated(order *models.Order) error {
	return publish(p.created, order)
}

// PublishOrderPaid streams the order settlement event to Kafka.
func (p *Producer) PublishOrderPaid(order *models.Order) error {
	return publish(p.paid, order)
}

func publish(w *kafka.Writer, order *models.Order) error {
	msgBytes, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return w.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(order.ID),
			Value: msgBytes,
		},
	)
}

func (p *Producer) Close() error {
	if err := p.created.Close(); err != nil {
		return err
	}
	return p.paid.Close()
}
