package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
