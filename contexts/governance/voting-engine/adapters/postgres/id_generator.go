package postgresadapter

import (
	"context"

	"github.com/google/uuid"
)

// UUIDGenerator issues time-ordered UUIDv7 values, so ballot ids sort by
// creation time.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
