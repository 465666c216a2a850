package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// Outbound webhook events
const (
	EventPaymentCompleted    = "payment.completed"
	EventPaymentFailed       = "payment.failed"
	EventBalanceCredited     = "balance.credited"
	EventOrderCreated        = "order.created"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventWithdrawalRejected  = "withdrawal.rejected"
	EventSpendingAlert       = "spending.alert"
	EventPing                = "ping"
)

var WebhookEvents = []string{
	EventPaymentCompleted,
	EventPaymentFailed,
	EventBalanceCredited,
	EventOrderCreated,
	EventWithdrawalCompleted,
	EventWithdrawalRejected,
	EventSpendingAlert,
	EventPing,
}

func IsWebhookEvent(event string) bool {
	for _, e := range WebhookEvents {
		if e == event {
			return true
		}
	}
	return false
}

type Webhook struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	UserID    int64          `json:"user_id" db:"user_id"`
	URL       string         `json:"url" db:"url"`
	Events    pq.StringArray `json:"events" db:"events"`
	Secret    string         `json:"secret,omitempty" db:"secret"`
	FailCount int            `json:"fail_count" db:"fail_count"`
	IsActive  bool           `json:"is_active" db:"is_active"`
	LastError *string        `json:"last_error,omitempty" db:"last_error"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

type WebhookLog struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	WebhookID    uuid.UUID      `json:"webhook_id" db:"webhook_id"`
	Event        string         `json:"event" db:"event"`
	Payload      types.JSONText `json:"payload" db:"payload"`
	ResponseCode *int           `json:"response_code,omitempty" db:"response_code"`
	ResponseBody *string        `json:"response_body,omitempty" db:"response_body"`
	Success      bool           `json:"success" db:"success"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
