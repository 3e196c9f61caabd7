package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// SeatPool is the canonical {capacity, remaining} pair for one seat class.
// Prices are in minor currency units.
type SeatPool struct {
	Capacity  int
	Remaining int
	Price     int64
}

// Upper bounds keep Price * Capacity well inside int64.
const (
	MaxCapacity = 1_000_000
	MaxPrice    = int64(1_000_000_000)
)

func (p SeatPool) Sold() int {
	return p.Capacity - p.Remaining
}

func (p SeatPool) Validate() error {
	if p.Capacity < 0 || p.Price < 0 {
		return errors.Wrap(ErrInvalidInput, "capacity and price must be non-negative")
	}
	if p.Capacity > MaxCapacity || p.Price > MaxPrice {
		return errors.Wrapf(ErrInvalidInput, "capacity above %d or price above %d", MaxCapacity, MaxPrice)
	}
	if p.Remaining < 0 || p.Remaining > p.Capacity {
		return errors.Wrapf(ErrInvalidInput, "remaining %d outside [0, %d]", p.Remaining, p.Capacity)
	}
	return nil
}

// Adjust applies delta to Remaining, refusing to leave [0, Capacity].
func (p SeatPool) Adjust(delta int) (SeatPool, error) {
	next := p.Remaining + delta
	if next < 0 {
		return p, errors.Wrapf(ErrInsufficientInventory, "requested %d, %d remaining", -delta, p.Remaining)
	}
	if next > p.Capacity {
		return p, errors.Wrapf(ErrCapacityExceeded, "remaining would be %d with capacity %d", next, p.Capacity)
	}
	p.Remaining = next
	return p, nil
}

// Rederive applies a capacity edit. Sold seats are kept: remaining moves by
// the same delta as capacity, and an edit below the sold count is rejected.
func (p SeatPool) Rederive(newCapacity int) (SeatPool, error) {
	if newCapacity < 0 {
		return p, errors.Wrap(ErrInvalidCapacityEdit, "capacity must be non-negative")
	}
	if newCapacity > MaxCapacity {
		return p, errors.Wrapf(ErrInvalidCapacityEdit, "capacity above %d", MaxCapacity)
	}
	if sold := p.Sold(); newCapacity < sold {
		return p, errors.Wrapf(ErrInvalidCapacityEdit, "capacity %d below %d seats already sold", newCapacity, sold)
	}
	p.Remaining += newCapacity - p.Capacity
	p.Capacity = newCapacity
	return p, nil
}

func (e Event) Pool(c SeatClass) (SeatPool, error) {
	switch c {
	case ClassVIP:
		return e.VIP, nil
	case ClassRegular:
		return e.Regular, nil
	}
	return SeatPool{}, errors.Wrapf(ErrInvalidTicketClass, "%q", string(c))
}

func (e *Event) SetPool(c SeatClass, p SeatPool) error {
	switch c {
	case ClassVIP:
		e.VIP = p
	case ClassRegular:
		e.Regular = p
	default:
		return errors.Wrapf(ErrInvalidTicketClass, "%q", string(c))
	}
	return nil
}

type EventInput struct {
	Title           string
	Description     string
	Date            time.Time
	Location        string
	Category        string
	Organizer       string
	MediaURL        string
	VIPCapacity     int
	RegularCapacity int
	VIPPrice        int64
	RegularPrice    int64
}

// NewEvent validates the input and opens both pools at full capacity.
func NewEvent(in EventInput, createdBy uuid.UUID, now time.Time) (Event, error) {
	e := Event{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date,
		Location:    strings.TrimSpace(in.Location),
		Category:    strings.TrimSpace(in.Category),
		Organizer:   strings.TrimSpace(in.Organizer),
		MediaURL:    in.MediaURL,
		CreatedBy:   createdBy,
		VIP:         SeatPool{Capacity: in.VIPCapacity, Remaining: in.VIPCapacity, Price: in.VIPPrice},
		Regular:     SeatPool{Capacity: in.RegularCapacity, Remaining: in.RegularCapacity, Price: in.RegularPrice},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.validateDetails(); err != nil {
		return Event{}, err
	}
	if err := e.VIP.Validate(); err != nil {
		return Event{}, errors.Wrap(err, "vip")
	}
	if err := e.Regular.Validate(); err != nil {
		return Event{}, errors.Wrap(err, "regular")
	}
	return e, nil
}

func (e Event) validateDetails() error {
	var missing []string
	fields := []struct{ name, value string }{
		{"title", e.Title}, {"location", e.Location}, {"category", e.Category}, {"organizer", e.Organizer},
	}
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if e.Date.IsZero() {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrInvalidInput, "missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// EventPatch carries an edit; nil fields are left unchanged.
type EventPatch struct {
	Title           *string
	Description     *string
	Date            *time.Time
	Location        *string
	Category        *string
	Organizer       *string
	MediaURL        *string
	VIPPrice        *int64
	RegularPrice    *int64
	VIPCapacity     *int
	RegularCapacity *int
}

func (p EventPatch) HasCapacityEdit() bool {
	return p.VIPCapacity != nil || p.RegularCapacity != nil
}

// ApplyDetails copies the non-seat fields of the patch onto e.
func (p EventPatch) ApplyDetails(e Event) (Event, error) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&e.Title, p.Title)
	set(&e.Description, p.Description)
	set(&e.Location, p.Location)
	set(&e.Category, p.Category)
	set(&e.Organizer, p.Organizer)
	if p.MediaURL != nil {
		e.MediaURL = *p.MediaURL
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.VIPPrice != nil {
		e.VIP.Price = *p.VIPPrice
	}
	if p.RegularPrice != nil {
		e.Regular.Price = *p.RegularPrice
	}
	if err := e.validateDetails(); err != nil {
		return e, err
	}
	if e.VIP.Price < 0 || e.Regular.Price < 0 {
		return e, errors.Wrap(ErrInvalidInput, "price must be non-negative")
	}
	if e.VIP.Price > MaxPrice || e.Regular.Price > MaxPrice {
		return e, errors.Wrapf(ErrInvalidInput, "price above %d", MaxPrice)
	}
	return e, nil
}
