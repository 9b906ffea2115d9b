package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/retail-orders/internal/apperr"
)

// AnyVersion makes Replace unconditional (last writer wins).
const AnyVersion int64 = -1

// MaxMutateAttempts bounds the read-modify-write retries in Mutate.
const MaxMutateAttempts = 5

var (
	ErrNotFound = fmt.Errorf("record %w", apperr.ErrNotFound)
	ErrConflict = errors.New("record already exists")
	// ErrVersionMismatch is retryable: the caller should re-read and re-apply.
	ErrVersionMismatch = fmt.Errorf("%w: record version mismatch", apperr.ErrTransient)
)

// Record is anything stored in a per-entity table keyed by (partition, row key).
// The version is managed by the store: Insert sets it to 1 and every Replace
// increments it.
type Record interface {
	PartitionKey() string
	RowKey() string
	GetVersion() int64
	SetVersion(int64)
}

// DeleteResult tells a successful delete apart from a delete of nothing.
type DeleteResult int

const (
	Deleted DeleteResult = iota + 1
	DeleteNotFound
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case DeleteNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Repository is the record store contract shared by every entity type.
type Repository[T Record] interface {
	// Get returns ErrNotFound when no record has the key.
	Get(ctx context.Context, partition, id string) (T, error)
	// Insert returns ErrConflict when the key is taken.
	Insert(ctx context.Context, rec T) error
	// Replace overwrites an existing record. With expectedVersion other than
	// AnyVersion it fails with ErrVersionMismatch unless the stored version
	// matches. Returns ErrNotFound when there is nothing to replace.
	Replace(ctx context.Context, rec T, expectedVersion int64) error
	QueryByPartition(ctx context.Context, partition string) ([]T, error)
	// Delete reports DeleteNotFound without an error for a missing key;
	// the error is reserved for infrastructure failures.
	Delete(ctx context.Context, partition, id string) (DeleteResult, error)
}

// Mutate re-reads the record, applies fn and writes it back guarded by the
// version it read, retrying when another writer got there first. fn returns
// false to leave the record untouched; Mutate then reports changed=false.
// fn may be called more than once and must not keep side effects.
func Mutate[T Record](
	ctx context.Context,
	repo Repository[T],
	partition, id string,
	fn func(rec T) (bool, error),
) (rec T, changed bool, err error) {
	for attempt := 0; attempt < MaxMutateAttempts; attempt++ {
		rec, err = repo.Get(ctx, partition, id)
		if err != nil {
			return rec, false, err
		}

		changed, err = fn(rec)
		if err != nil || !changed {
			return rec, false, err
		}

		err = repo.Replace(ctx, rec, rec.GetVersion())
		if errors.Is(err, ErrVersionMismatch) {
			continue
		}
		if err != nil {
			return rec, false, err
		}
		return rec, true, nil
	}
	return rec, false, fmt.Errorf("mutate %s/%s after %d attempts: %w", partition, id, MaxMutateAttempts, ErrVersionMismatch)
}
