package notify

import (
	"time"
)

// Message is the wire form of a Notification.
type Message struct {
	ID                string    `json:"id"`
	Kind              Kind      `json:"kind"`
	OccurredAt        time.Time `json:"occurred_at"`
	EventID           string    `json:"event_id,omitempty"`
	EventTitle        string    `json:"event_title,omitempty"`
	VIPRemaining      *int      `json:"vip_remaining,omitempty"`
	RegularRemaining  *int      `json:"regular_remaining,omitempty"`
	BookingID         string    `json:"booking_id,omitempty"`
	UserID            string    `json:"user_id,omitempty"`
	Class             string    `json:"class,omitempty"`
	Quantity          int       `json:"quantity,omitempty"`
	TotalAmount       int64     `json:"total_amount,omitempty"`
	Status            string    `json:"status,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	PaymentID         string    `json:"payment_id,omitempty"`
	ExternalPaymentID string    `json:"external_payment_id,omitempty"`
}

func NewMessage(n Notification) Message {
	m := Message{
		ID:         n.ID.String(),
		Kind:       n.Kind,
		OccurredAt: n.OccurredAt.UTC(),
	}
	if e := n.Event; e != nil {
		vip, regular := e.VIP.Remaining, e.Regular.Remaining
		m.EventID = e.ID.String()
		m.EventTitle = e.Title
		m.VIPRemaining = &vip
		m.RegularRemaining = &regular
	}
	if b := n.Booking; b != nil {
		m.EventID = b.EventID.String()
		m.BookingID = b.ID.String()
		m.UserID = b.UserID.String()
		m.Class = string(b.Class)
		m.Quantity = b.Quantity
		m.TotalAmount = b.TotalAmount
		m.Status = string(b.Status)
		m.Reason = b.FailureReason
	}
	if p := n.Payment; p != nil {
		m.PaymentID = p.ID.String()
		m.ExternalPaymentID = p.ExternalID
	}
	return m
}
