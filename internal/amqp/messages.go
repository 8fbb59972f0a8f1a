package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrMissingUser = errors.New("recalculate message has no user id")

// RecalculateMessage asks a worker to rebuild one user's financial state.
// It carries no transaction data; the worker reads everything it needs from the store.
type RecalculateMessage struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecalculateMessage(userID, reason string) *RecalculateMessage {
	return &RecalculateMessage{
		RequestID: uuid.NewString(),
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *RecalculateMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return ErrMissingUser
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *RecalculateMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecalculateMessageFromJSON(data []byte) (*RecalculateMessage, error) {
	var msg RecalculateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
