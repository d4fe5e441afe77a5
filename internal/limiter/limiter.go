// Package limiter throttles identity exchanges that fail login verification.
package limiter

import (
	"context"
	"time"
)

// Limiter tracks failed exchanges per client and places temporary blocks.
type Limiter interface {
	// Allow reports whether the client may exchange now, and when to retry otherwise.
	Allow(ctx context.Context, client []byte) (bool, time.Duration, error)
	// Success clears the failure count of the client.
	Success(ctx context.Context, client []byte) error
	// Failure records a rejected exchange and reports whether it caused a block.
	Failure(ctx context.Context, client []byte) (bool, time.Duration, error)
}

// Nop never blocks.
type Nop struct{}

func (Nop) Allow(context.Context, []byte) (bool, time.Duration, error)   { return true, 0, nil }
func (Nop) Success(context.Context, []byte) error                        { return nil }
func (Nop) Failure(context.Context, []byte) (bool, time.Duration, error) { return false, 0, nil }
