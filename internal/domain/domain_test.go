package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseTimestamp(t *testing.T) {
	ist := time.FixedZone("", 5*3600+1800)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"SpaceSeparated", "2025-03-10 14:00:00", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)},
		{"RFC3339", "2025-03-10T14:00:00Z", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)},
		{"Offset", "2025-03-10T02:30:00+05:30", time.Date(2025, 3, 10, 2, 30, 0, 0, ist)},
		{"Fraction", "2025-03-10T14:00:00.250", time.Date(2025, 3, 10, 14, 0, 0, 250e6, time.UTC)},
		{"MinutePrecision", "2025-03-10 14:05", time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC)},
		{"DateOnly", "2025-03-10", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"Padded", "  2025-03-10 14:00:00 ", time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) failed: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("OffsetKeepsWallClock", func(t *testing.T) {
		got, _ := ParseTimestamp("2025-03-10T02:30:00+05:30")
		if got.Hour() != 2 {
			t.Errorf("expected wall-clock hour 2, got %d", got.Hour())
		}
	})

	for _, bad := range []string{"", "yesterday", "10/03/2025", "2025-13-01 00:00:00"} {
		t.Run("Invalid/"+bad, func(t *testing.T) {
			if _, err := ParseTimestamp(bad); !errors.Is(err, ErrInvalidTimestamp) {
				t.Errorf("expected ErrInvalidTimestamp for %q, got %v", bad, err)
			}
		})
	}
}

func TestToTransaction(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Normalizes", func(t *testing.T) {
		req := &ScreeningRequest{
			Sender:    " Alice@UPI ",
			Receiver:  "BOB@okaxis",
			Amount:    decimal.RequireFromString("99.50"),
			Timestamp: "2025-03-10 14:00:00",
			Location:  " Pune ",
		}
		tx, err := req.ToTransaction("t-1", now)
		if err != nil {
			t.Fatalf("ToTransaction failed: %v", err)
		}
		if tx.Sender != "alice@upi" || tx.Receiver != "bob@okaxis" {
			t.Errorf("handles not normalized: %s %s", tx.Sender, tx.Receiver)
		}
		if tx.Device != UnknownDevice || tx.Location != "Pune" {
			t.Errorf("unexpected device/location: %q %q", tx.Device, tx.Location)
		}
		if !tx.CreatedAt.Equal(now) {
			t.Errorf("expected created_at %v, got %v", now, tx.CreatedAt)
		}
	})

	t.Run("EmptyTimestampIsNow", func(t *testing.T) {
		req := &ScreeningRequest{Sender: "a@x", Receiver: "b@y", Amount: decimal.NewFromInt(1)}
		tx, err := req.ToTransaction("t-2", now)
		if err != nil {
			t.Fatalf("ToTransaction failed: %v", err)
		}
		if !tx.Timestamp.Equal(now) {
			t.Errorf("expected %v, got %v", now, tx.Timestamp)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		cases := []struct {
			name string
			req  ScreeningRequest
			want error
		}{
			{"BadTimestamp", ScreeningRequest{Sender: "a@x", Receiver: "b@y", Timestamp: "noon"}, ErrInvalidTimestamp},
			{"NegativeAmount", ScreeningRequest{Sender: "a@x", Receiver: "b@y", Amount: decimal.NewFromInt(-5)}, ErrInvalidInput},
			{"MissingSender", ScreeningRequest{Receiver: "b@y"}, ErrInvalidInput},
			{"BlankReceiver", ScreeningRequest{Sender: "a@x", Receiver: "  "}, ErrInvalidInput},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				if _, err := c.req.ToTransaction("t", now); !errors.Is(err, c.want) {
					t.Errorf("expected %v, got %v", c.want, err)
				}
			})
		}
	})
}

func TestDayOfWeek(t *testing.T) {
	// 2025-03-10 is a Monday
	monday := &Transaction{Timestamp: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	sunday := &Transaction{Timestamp: time.Date(2025, 3, 16, 9, 0, 0, 0, time.UTC)}
	if monday.DayOfWeek() != 0 || sunday.DayOfWeek() != 6 {
		t.Errorf("expected Monday=0 Sunday=6, got %d %d", monday.DayOfWeek(), sunday.DayOfWeek())
	}
}

func TestNewFlaggedRecord(t *testing.T) {
	tx := &Transaction{ID: "t-1", Sender: "a@x", Receiver: "b@y", Amount: decimal.NewFromInt(5)}
	reasons := []string{ReasonHighAmount}

	rec := NewFlaggedRecord("f-1", tx, reasons, SourceRealtime, time.Now())
	reasons[0] = "mutated"
	if rec.Reasons[0] != ReasonHighAmount {
		t.Error("record must not alias the caller's reasons")
	}
	if !rec.IsFraud || rec.TxID != "t-1" {
		t.Errorf("unexpected record: %+v", rec)
	}

	legit := NewFlaggedRecord("f-2", tx, nil, SourceRealtime, time.Now())
	if legit.IsFraud {
		t.Error("record without reasons must not be fraud")
	}
}
