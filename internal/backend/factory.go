package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"optify/internal/amqp"
	"optify/internal/storage"
	"optify/internal/storage/memory"
)

type DefaultFactory struct {
	logger *slog.Logger
	dial   func(url, exchange, queue string) (*amqp.Client, error)
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		dial:   amqp.NewClient,
	}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store storage.Repository
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store = repo
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	queue, err := f.connectQueue(ctx, config)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &BackendResult{
		Store: store,
		Queue: queue,
		Cleanup: func() error {
			var errs []error
			if queue != nil {
				if err := queue.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
			}
			if err := store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) connectQueue(ctx context.Context, config Config) (*amqp.Client, error) {
	if config.AMQPURL == "" {
		return nil, nil
	}

	client, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		if config.RequireQueue {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, recomputing in-process", "error", err)
		return nil, nil
	}

	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client, nil
}
