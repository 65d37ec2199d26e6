package kafka

import (
	"context"
	"encoding/json"
	"time"

	"ms-keyshop/internal/config"
	"ms-keyshop/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer publishes the engine's lifecycle events. The topic is picked per
// message; one writer serves all of them.
type Producer struct {
	writer *kafka.Writer
	topics config.TopicConfig
}

func NewProducer(brokers []string, topics config.TopicConfig) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer, topics: topics}
}

type orderCancelledEvent struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type reservationReleasedEvent struct {
	OrderID    string    `json:"order_id,omitempty"`
	VariantIDs []string  `json:"variant_ids"`
	Timestamp  time.Time `json:"timestamp"`
}

type stockChangedEvent struct {
	VariantID string    `json:"variant_id"`
	OldStock  int       `json:"old_stock"`
	NewStock  int       `json:"new_stock"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *Producer) PublishOrderCancelled(order models.Order) error {
	return p.publish(p.topics.OrderCancelled, order.ID, orderCancelledEvent{
		OrderID:   order.ID,
		Status:    string(order.Status),
		Timestamp: time.Now().UTC(),
	})
}

func (p *Producer) PublishReservationReleased(orderID string, variantIDs []string) error {
	key := orderID
	if key == "" {
		key = "sweep"
	}
	return p.publish(p.topics.ReservationReleased, key, reservationReleasedEvent{
		OrderID:    orderID,
		VariantIDs: variantIDs,
		Timestamp:  time.Now().UTC(),
	})
}

func (p *Producer) PublishStockChanged(variantID string, oldStock, newStock int, status models.CatalogStatus) error {
	return p.publish(p.topics.StockChanged, variantID, stockChangedEvent{
		VariantID: variantID,
		OldStock:  oldStock,
		NewStock:  newStock,
		Status:    string(status),
		Timestamp: time.Now().UTC(),
	})
}

func (p *Producer) publish(topic, key string, event interface{}) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
