package storage

import "context"

// Storage is a keyed collection of values of one type. List returns values
// ordered by key.
type Storage[T any] interface {
	Create(ctx context.Context, key string, value T) error
	Get(ctx context.Context, key string) (T, error)
	Update(ctx context.Context, key string, value T) error
	List(ctx context.Context, offset, limit uint64) ([]T, uint64, error)
	Delete(ctx context.Context, key string) error
}
