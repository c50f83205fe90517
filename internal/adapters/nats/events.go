package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
)

const (
	EventRegistered = "user.registered"
	EventVerified   = "user.verified"
	EventDeleted    = "user.deleted"
)

// EventPublisher announces user lifecycle transitions to interested
// services. Publishing is fire-and-forget; callers log failures.
type EventPublisher interface {
	Publish(ctx context.Context, event, userID, email string) error
}

type eventPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewEventPublisher(conn *nats.Conn, subject string) EventPublisher {
	return &eventPublisher{conn: conn, subject: subject}
}

func (p *eventPublisher) Publish(_ context.Context, event, userID, email string) error {
	if p.conn == nil {
		return fmt.Errorf("nats connection is nil")
	}
	payload := map[string]interface{}{
		"event":   event,
		"user_id": userID,
		"email":   email,
		"at":      time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.conn.Publish(fmt.Sprintf("%s.%s", p.subject, event), data)
}
