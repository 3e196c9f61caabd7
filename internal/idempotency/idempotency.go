// Package idempotency replays stored responses for retried requests that
// carry the same Idempotency-Key.
package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/event-ticket-inventory/internal/adapters/redis"
)

// ErrInFlight means an identical request is still being processed.
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// Backend is satisfied by the Redis adapter.
type Backend interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Idempotency struct {
	backend Backend
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotency(backend Backend, ttl time.Duration) *Idempotency {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Idempotency{backend: backend, ttl: ttl, lockTTL: 30 * time.Second}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.backend.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.backend.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
}

// Begin returns the stored response for key if there is one. Otherwise it
// reserves key and returns a nil response; the caller must call Finish.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if resp, err := i.Get(ctx, key); err != nil || resp != nil {
		return resp, err
	}
	ok, err := i.backend.Reserve(ctx, key, i.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return nil, nil
}

// Finish stores resp, when given, and drops the reservation. Server errors
// are not stored so the client can retry them.
func (i *Idempotency) Finish(ctx context.Context, key string, resp *Response) error {
	var err error
	if resp != nil && resp.Status < 500 {
		err = i.Set(ctx, key, *resp)
	}
	return errors.CombineErrors(err, i.backend.Release(ctx, key))
}
