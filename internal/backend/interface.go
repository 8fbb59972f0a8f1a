package backend

import (
	"context"

	"optify/internal/amqp"
	"optify/internal/storage"
)

// CleanupFunc releases the resources held by a backend.
type CleanupFunc func() error

// BackendResult is a ready-to-use store plus the optional recompute queue.
type BackendResult struct {
	Store storage.Repository
	// Queue is nil when no AMQP broker is configured or reachable.
	Queue   *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Recompute queue, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireQueue turns a broker connection failure into an error.
	RequireQueue bool
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
