package inventory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

func (c *Coordinator) GetPayment(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Payment, error) {
	p, err := c.store.GetPayment(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if !actor.CanManage(p.UserID) {
		return domain.Payment{}, errors.Wrap(domain.ErrUnauthorized, "not the payment owner")
	}
	return p, nil
}

// ListPayments returns the actor's own payments, newest first.
func (c *Coordinator) ListPayments(ctx context.Context, actor domain.Actor) ([]domain.Payment, error) {
	if actor.UserID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	return c.store.ListPaymentsByUser(ctx, actor.UserID)
}

func (c *Coordinator) ListAllPayments(ctx context.Context, actor domain.Actor) ([]domain.Payment, error) {
	if !actor.IsAdmin() {
		return nil, errors.Wrap(domain.ErrUnauthorized, "admin only")
	}
	return c.store.ListPayments(ctx)
}
