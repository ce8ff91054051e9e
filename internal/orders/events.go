package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	EventTotalChanged   = "OrderTotalChanged"
	EventCheckedOut     = "OrderCheckedOut"
	EventOrderPaid      = "OrderPaid"
	EventPaymentPending = "PaymentPending"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload per event ----

type TotalChangedPayload struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
}

type CheckedOutPayload struct {
	OrderID string          `json:"order_id"`
	Number  string          `json:"number"`
	UserID  string          `json:"user_id"`
	Total   decimal.Decimal `json:"total"`
}

type OrderPaidPayload struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type PaymentPendingPayload struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
}

// Publisher is the narrow slice of the kafka producer the domain needs.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Emit wraps payload in a v1 envelope and publishes it keyed by order id.
// A nil publisher drops the event; persistence never depends on it.
func Emit(pub Publisher, eventType, producer, orderID string, payload any) {
	if pub == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       raw,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	pub.Publish(PartitionKey(orderID), b,
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
