package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type SeatClass string

const (
	ClassVIP     SeatClass = "VIP"
	ClassRegular SeatClass = "REGULAR"
)

// ParseSeatClass accepts the canonical names plus the legacy spellings
// ("viptickets", "regulartickets") still sent by older clients.
func ParseSeatClass(s string) (SeatClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vip", "viptickets", "vipticket":
		return ClassVIP, nil
	case "regular", "regulartickets", "regularticket":
		return ClassRegular, nil
	}
	return "", errors.Wrapf(ErrInvalidTicketClass, "%q", s)
}

func (c SeatClass) Valid() bool {
	return c == ClassVIP || c == ClassRegular
}

type Event struct {
	ID          uuid.UUID
	Title       string
	Description string
	Date        time.Time
	Location    string
	Category    string
	Organizer   string
	MediaURL    string
	CreatedBy   uuid.UUID
	VIP         SeatPool
	Regular     SeatPool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingFailed    BookingStatus = "FAILED"
	BookingRefunded  BookingStatus = "REFUNDED"
)

// Terminal states admit no further transitions.
func (s BookingStatus) Terminal() bool {
	return s == BookingFailed || s == BookingRefunded
}

type Booking struct {
	ID                uuid.UUID
	EventID           uuid.UUID
	UserID            uuid.UUID
	Class             SeatClass
	Quantity          int
	UnitPrice         int64
	TotalAmount       int64
	Status            BookingStatus
	PaymentID         *uuid.UUID
	ExternalPaymentID string
	FailureReason     string
	ExpiresAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type Payment struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	EventID     uuid.UUID
	UserID      uuid.UUID
	Class       SeatClass
	Quantity    int
	UnitPrice   int64
	TotalAmount int64
	Currency    string
	Method      string
	ExternalID  string
	Status      PaymentStatus
	CreatedAt   time.Time
	RefundedAt  *time.Time
}

// Authorization is a successful capture reported by the payment gateway.
type Authorization struct {
	ExternalID string
	Amount     int64
	Currency   string
}

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

// ChargeRequest asks the payment gateway to capture an amount.
type ChargeRequest struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}
