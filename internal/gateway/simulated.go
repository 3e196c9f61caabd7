package gateway

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

// Simulated approves every charge for its full amount. Decline and Fail make
// it refuse or error on demand.
type Simulated struct {
	mu      sync.Mutex
	decline bool
	fail    error
	calls   int
}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Decline(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decline = on
}

func (s *Simulated) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *Simulated) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Simulated) Authorize(ctx context.Context, req domain.ChargeRequest) (domain.Authorization, error) {
	if err := ctx.Err(); err != nil {
		return domain.Authorization{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return domain.Authorization{}, s.fail
	}
	if s.decline {
		return domain.Authorization{}, errors.Wrap(domain.ErrGatewayDeclined, "card declined")
	}
	return domain.Authorization{
		ExternalID: "pay_" + uuid.NewString(),
		Amount:     req.Amount,
		Currency:   req.Currency,
	}, nil
}
