package blob

import "context"

// Store saves named binary objects and returns a URI they can be fetched from.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	// URI is the location Put returns for name, for objects written by
	// other producers.
	URI(name string) string
}
