package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/idempotency"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
)

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Hints   []string `json:"hints,omitempty"`
}

var errorStatus = []struct {
	target error
	code   string
	status int
}{
	{domain.ErrUnauthenticated, "unauthenticated", http.StatusUnauthorized},
	{domain.ErrUnauthorized, "unauthorized", http.StatusForbidden},
	{domain.ErrNotFound, "not_found", http.StatusNotFound},
	{domain.ErrInvalidTicketClass, "invalid_ticket_class", http.StatusBadRequest},
	{domain.ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{domain.ErrInvalidCapacityEdit, "invalid_capacity_edit", http.StatusUnprocessableEntity},
	{domain.ErrInsufficientInventory, "insufficient_inventory", http.StatusConflict},
	{domain.ErrCapacityExceeded, "capacity_exceeded", http.StatusConflict},
	{domain.ErrGatewayDeclined, "payment_declined", http.StatusPaymentRequired},
	{domain.ErrAmountMismatch, "amount_mismatch", http.StatusBadGateway},
	{domain.ErrAlreadyTerminal, "already_terminal", http.StatusConflict},
	{domain.ErrInvalidState, "invalid_state", http.StatusConflict},
	{domain.ErrEventInUse, "event_in_use", http.StatusConflict},
	{domain.ErrConflict, "conflict", http.StatusConflict},
	{idempotency.ErrInFlight, "request_in_progress", http.StatusConflict},
	{domain.ErrSerializationFailure, "retry", http.StatusServiceUnavailable},
}

// writeError is the single place error kinds become status codes. Messages
// of unclassified errors are logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorStatus {
		if errors.Is(err, m.target) {
			writeJSON(w, m.status, errorBody{Error: m.code, Message: err.Error(), Hints: errors.GetAllHints(err)})
			return
		}
	}
	loggerFrom(r.Context()).WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loggerFrom(ctx context.Context) observability.Logger {
	if l, ok := ctx.Value(loggerKey{}).(observability.Logger); ok {
		return l
	}
	return observability.NewDiscardLogger()
}
