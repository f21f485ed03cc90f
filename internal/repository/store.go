package repository

import "context"

// Store is what a storage backend provides to the rest of the process.
type Store interface {
	TaskRepository
	AttemptRepository

	Ping(ctx context.Context) error
	Close()
}
