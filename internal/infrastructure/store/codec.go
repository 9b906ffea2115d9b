package store

import (
	"encoding/json"
	"fmt"

	"github.com/example/retail-orders/internal/apperr"
)

func encode[T Record](rec T) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", rec.PartitionKey(), rec.RowKey(), err)
	}
	return data, nil
}

func decode[T Record](newRecord func() T, data []byte, version int64) (T, error) {
	rec := newRecord()
	if err := json.Unmarshal(data, rec); err != nil {
		var zero T
		return zero, fmt.Errorf("decode record: %w", err)
	}
	rec.SetVersion(version)
	return rec, nil
}

// backendErr marks a failure talking to the backing service as retryable.
func backendErr(format string, args ...any) error {
	return apperr.Transient(fmt.Errorf(format, args...))
}
