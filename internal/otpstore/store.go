// Package otpstore holds short-lived one-time codes keyed by identity.
// Expiry is enforced by the backing store, never by the caller.
package otpstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("otp not found")

type Store interface {
	// Put overwrites any live code stored under key.
	Put(ctx context.Context, key string, code string, ttl time.Duration) error
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// Delete reports whether a live entry was removed.
	Delete(ctx context.Context, key string) (bool, error)
	// Incr bumps a counter and returns its new value. ttl applies only when
	// the counter is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

func CodeKey(email string) string {
	return "otp:" + email
}

func ResetGrantKey(email string) string {
	return "otp-verified:" + email
}

func AttemptsKey(email string) string {
	return "otp-attempts:" + email
}
