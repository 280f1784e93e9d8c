package domain

import (
	"time"

	"github.com/google/uuid"
)

// StudioStatusEvent is the message published to RabbitMQ whenever a studio
// crosses a lifecycle transition. Routing key: studio.status.<new_status>.
type StudioStatusEvent struct {
	EventID    string       `json:"event_id"`
	StudioID   uuid.UUID    `json:"studio_id"`
	UserID     uuid.UUID    `json:"user_id"`
	Plan       string       `json:"plan"`
	FromStatus StudioStatus `json:"from_status"`
	ToStatus   StudioStatus `json:"to_status"`
	Reason     string       `json:"reason,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// CreditEvent is the message published to RabbitMQ for every ledger
// mutation. Routing key: credits.granted or credits.deducted.
type CreditEvent struct {
	EventID    string        `json:"event_id"`
	AccountID  uuid.UUID     `json:"account_id"`
	Context    CreditContext `json:"context"`
	Bucket     CreditBucket  `json:"bucket"`
	Delta      int64         `json:"delta"`
	Remaining  int64         `json:"remaining"`
	Reason     string        `json:"reason"`
	StudioID   *uuid.UUID    `json:"studio_id,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
