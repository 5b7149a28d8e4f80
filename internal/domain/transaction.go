package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a recorded UPI payment. Immutable once stored.
type Transaction struct {
	// Core identifiers
	ID string `json:"txn_id"`

	// Parties involved (UPI handles)
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`

	// Financial details
	Amount decimal.Decimal `json:"amount"`

	// Origin
	Device   string `json:"device"`
	Location string `json:"location,omitempty"`

	// Temporal. Timestamp keeps the offset it was submitted with.
	Timestamp time.Time `json:"time"`
	CreatedAt time.Time `json:"created_at"`
}

// Hour returns the wall-clock hour of the transaction (0-23).
func (t *Transaction) Hour() int {
	return t.Timestamp.Hour()
}

// DayOfWeek returns the day of week with Monday = 0 and Sunday = 6.
func (t *Transaction) DayOfWeek() int {
	return (int(t.Timestamp.Weekday()) + 6) % 7
}

// ScreeningRequest is the payload submitted for real-time screening.
type ScreeningRequest struct {
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Amount    decimal.Decimal `json:"amount"`
	Device    string          `json:"device"`
	Timestamp string          `json:"timestamp"`
	Location  string          `json:"location,omitempty"`
}

// UnknownDevice is recorded when a request carries no device label.
const UnknownDevice = "Unknown"

// ToTransaction validates the request and converts it to a Transaction.
// Handles are lower-cased. An empty timestamp means "now".
func (r *ScreeningRequest) ToTransaction(id string, now time.Time) (*Transaction, error) {
	ts := now.UTC()
	if strings.TrimSpace(r.Timestamp) != "" {
		parsed, err := ParseTimestamp(r.Timestamp)
		if err != nil {
			return nil, err
		}
		ts = parsed
	}

	if r.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}

	sender := strings.ToLower(strings.TrimSpace(r.Sender))
	receiver := strings.ToLower(strings.TrimSpace(r.Receiver))
	if sender == "" || receiver == "" {
		return nil, fmt.Errorf("%w: sender and receiver are required", ErrInvalidInput)
	}

	device := strings.TrimSpace(r.Device)
	if device == "" {
		device = UnknownDevice
	}

	return &Transaction{
		ID:        id,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    r.Amount,
		Device:    device,
		Location:  strings.TrimSpace(r.Location),
		Timestamp: ts,
		CreatedAt: now.UTC(),
	}, nil
}
