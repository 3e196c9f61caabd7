package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/auth"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
)

// EventCatalog is the eventually consistent browse model.
type EventCatalog interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
}

type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handlers struct {
	coord   *inventory.Coordinator
	catalog EventCatalog
	ready   []ReadinessCheck
}

func NewHandlers(coord *inventory.Coordinator, catalog EventCatalog, ready ...ReadinessCheck) *Handlers {
	return &Handlers{coord: coord, catalog: catalog, ready: ready}
}

func actor(r *http.Request) domain.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errors.Wrap(domain.ErrInvalidInput, "invalid id")
	}
	return id, nil
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(domain.ErrInvalidInput, "malformed body: %v", err)
	}
	return nil
}

// events

type eventRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Date            time.Time `json:"date"`
	Location        string    `json:"location"`
	Category        string    `json:"category"`
	Organizer       string    `json:"organizer"`
	MediaURL        string    `json:"media_url"`
	VIPCapacity     int       `json:"vip_capacity"`
	RegularCapacity int       `json:"regular_capacity"`
	VIPPrice        int64     `json:"vip_price"`
	RegularPrice    int64     `json:"regular_price"`
}

type eventPatchRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Date            *time.Time `json:"date"`
	Location        *string    `json:"location"`
	Category        *string    `json:"category"`
	Organizer       *string    `json:"organizer"`
	MediaURL        *string    `json:"media_url"`
	VIPPrice        *int64     `json:"vip_price"`
	RegularPrice    *int64     `json:"regular_price"`
	VIPCapacity     *int       `json:"vip_capacity"`
	RegularCapacity *int       `json:"regular_capacity"`
}

type seatsResponse struct {
	Capacity  int   `json:"capacity"`
	Remaining int   `json:"remaining"`
	Price     int64 `json:"price"`
}

type eventResponse struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Date        time.Time     `json:"date"`
	Location    string        `json:"location"`
	Category    string        `json:"category"`
	Organizer   string        `json:"organizer"`
	MediaURL    string        `json:"media_url,omitempty"`
	CreatedBy   uuid.UUID     `json:"created_by"`
	VIP         seatsResponse `json:"vip"`
	Regular     seatsResponse `json:"regular"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func toEventResponse(e domain.Event) eventResponse {
	return eventResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date,
		Location:    e.Location,
		Category:    e.Category,
		Organizer:   e.Organizer,
		MediaURL:    e.MediaURL,
		CreatedBy:   e.CreatedBy,
		VIP:         seatsResponse{Capacity: e.VIP.Capacity, Remaining: e.VIP.Remaining, Price: e.VIP.Price},
		Regular:     seatsResponse{Capacity: e.Regular.Capacity, Remaining: e.Regular.Remaining, Price: e.Regular.Price},
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.coord.CreateEvent(r.Context(), actor(r), domain.EventInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(e))
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []domain.Event
		err    error
	)
	if h.catalog != nil {
		events, err = h.catalog.ListEvents(r.Context())
		if err != nil {
			loggerFrom(r.Context()).WithError(err).Warn("catalog unavailable, listing from store")
		}
	}
	if h.catalog == nil || err != nil {
		events, err = h.coord.ListEvents(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.coord.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req eventPatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.coord.UpdateEvent(r.Context(), actor(r), id, domain.EventPatch(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.coord.DeleteEvent(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) EventCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.coord.Capacity(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// bookings

type bookingRequest struct {
	EventID  uuid.UUID `json:"event_id"`
	Class    string    `json:"class"`
	Quantity int       `json:"quantity"`
}

type bookingResponse struct {
	ID                uuid.UUID  `json:"id"`
	EventID           uuid.UUID  `json:"event_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Class             string     `json:"class"`
	Quantity          int        `json:"quantity"`
	UnitPrice         int64      `json:"unit_price"`
	TotalAmount       int64      `json:"total_amount"`
	Status            string     `json:"status"`
	PaymentID         *uuid.UUID `json:"payment_id,omitempty"`
	ExternalPaymentID string     `json:"external_payment_id,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func toBookingResponse(b domain.Booking) bookingResponse {
	return bookingResponse{
		ID:                b.ID,
		EventID:           b.EventID,
		UserID:            b.UserID,
		Class:             string(b.Class),
		Quantity:          b.Quantity,
		UnitPrice:         b.UnitPrice,
		TotalAmount:       b.TotalAmount,
		Status:            string(b.Status),
		PaymentID:         b.PaymentID,
		ExternalPaymentID: b.ExternalPaymentID,
		FailureReason:     b.FailureReason,
		ExpiresAt:         b.ExpiresAt,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	class, err := domain.ParseSeatClass(req.Class)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.coord.CreateBooking(r.Context(), actor(r), inventory.BookingRequest{
		EventID:  req.EventID,
		Class:    class,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.coord.ListBookings(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.coord.GetBooking(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

type captureRequest struct {
	Method string `json:"method"`
}

type captureResponse struct {
	Booking bookingResponse  `json:"booking"`
	Payment *paymentResponse `json:"payment,omitempty"`
}

func (h *Handlers) CapturePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req captureRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Method == "" {
		req.Method = "card"
	}
	b, p, err := h.coord.CapturePayment(r.Context(), actor(r), id, req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pr := toPaymentResponse(p)
	writeJSON(w, http.StatusOK, captureResponse{Booking: toBookingResponse(b), Payment: &pr})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.coord.CancelBooking(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// payments

type paymentResponse struct {
	ID          uuid.UUID  `json:"id"`
	BookingID   uuid.UUID  `json:"booking_id"`
	EventID     uuid.UUID  `json:"event_id"`
	UserID      uuid.UUID  `json:"user_id"`
	Class       string     `json:"class"`
	Quantity    int        `json:"quantity"`
	UnitPrice   int64      `json:"unit_price"`
	TotalAmount int64      `json:"total_amount"`
	Currency    string     `json:"currency"`
	Method      string     `json:"method"`
	ExternalID  string     `json:"external_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

func toPaymentResponse(p domain.Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		BookingID:   p.BookingID,
		EventID:     p.EventID,
		UserID:      p.UserID,
		Class:       string(p.Class),
		Quantity:    p.Quantity,
		UnitPrice:   p.UnitPrice,
		TotalAmount: p.TotalAmount,
		Currency:    p.Currency,
		Method:      p.Method,
		ExternalID:  p.ExternalID,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		RefundedAt:  p.RefundedAt,
	}
}

func writePayments(w http.ResponseWriter, payments []domain.Payment) {
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.coord.ListPayments(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePayments(w, payments)
}

func (h *Handlers) ListAllPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.coord.ListAllPayments(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePayments(w, payments)
}

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.coord.GetPayment(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handlers) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.coord.CancelPayment(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// health and readiness

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for _, c := range h.ready {
		if err := c.Check(ctx); err != nil {
			failed[c.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, failed)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
