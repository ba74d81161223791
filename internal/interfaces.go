package internal

import "context"

// SessionSource hands out the session identifier sent with uploads
type SessionSource interface {
	ID() string
	Initialize(ctx context.Context) string
}

// Reachability reports whether the backend can be reached at all
type Reachability interface {
	Reachable(ctx context.Context) bool
}

// MediaStore moves a finished download into user-visible storage
type MediaStore interface {
	Import(ctx context.Context, path, mimeType string) (string, error)
}

// RateLimiter controls bandwidth usage
type RateLimiter interface {
	Wait(ctx context.Context, n int) error
	SetRate(bytesPerSecond int64)
}
