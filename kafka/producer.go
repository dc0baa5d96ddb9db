package kafka

import (
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"

	"github.com/wizardl22111-coder/leve1up-sub000/model"
)

const orderPaidTopic = "order.paid"

// Producer fans out order lifecycle events after webhook reconciliation.
// It is optional infrastructure: a nil Producer is safe to call.
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer connects to the broker with a short retry loop. Unlike the
// HTTP surface, event fan-out is best effort, so a broker that never shows
// up yields a nil producer instead of aborting startup.
func NewProducer(broker string) *Producer {
	if broker == "" {
		return nil
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	var producer sarama.SyncProducer
	var err error
	for i := 1; i <= 5; i++ {
		producer, err = sarama.NewSyncProducer([]string{broker}, config)
		if err == nil {
			log.Printf("Kafka producer connected to %s", broker)
			return &Producer{producer: producer}
		}

		log.Printf("Failed to connect to Kafka (try %d/5): %v", i, err)
		time.Sleep(3 * time.Second)
	}

	log.Printf("❌ Could not connect to Kafka after 5 attempts, events disabled: %v", err)
	return nil
}

// PublishOrderPaid announces a pending→paid reconciliation. Failures are
// logged and swallowed; payment state never depends on the event bus.
func (p *Producer) PublishOrderPaid(order *model.Order) {
	if p == nil || p.producer == nil {
		return
	}

	event := map[string]any{
		"event_type": "order.paid",
		"data": map[string]any{
			"order_id":       order.ID,
			"payment_id":     order.PaymentID,
			"customer_email": order.CustomerEmail,
			"amount":         order.Amount,
			"currency":       order.Currency,
			"paid_at":        order.PaidAt,
		},
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("❌ failed to encode order.paid event: %v", err)
		return
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: orderPaidTopic,
		Key:   sarama.StringEncoder(order.ID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		log.Printf("❌ failed to publish order.paid for %s: %v", order.ID, err)
		return
	}
	log.Printf("📡 order.paid published for %s", order.ID)
}
