package interfaces

import "context"

// Publisher sends a message to a queue or exchange. The payload is
// marshalled to JSON by the implementation.
//
//go:generate mockery --name Publisher --output ./mocks --outpkg mocks --case=underscore
type Publisher interface {
	Publish(ctx context.Context, payload interface{}, correlationID string) error
	Close() error
}
