// Package seed produces demo data: synthetic transactions, CSV import and
// export, and sample block-list entries.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Record is a generated transaction with its synthetic label.
type Record struct {
	*domain.Transaction
	IsFraud bool
}

// Config holds generator settings.
type Config struct {
	Count   int
	Seed    int64
	Days    int
	Devices []string
	Now     time.Time
}

// DefaultConfig returns the generator defaults.
func DefaultConfig() Config {
	return Config{
		Count:   500,
		Seed:    0,
		Days:    30,
		Devices: []string{"Android", "iOS", "Windows", "Linux"},
	}
}

// Generator produces synthetic UPI transactions. The same seed and Now
// always yield the same records.
type Generator struct {
	cfg  Config
	rand *rand.Rand
}

// NewGenerator returns a configured Generator.
func NewGenerator(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.Count <= 0 {
		cfg.Count = def.Count
	}
	if cfg.Days <= 0 {
		cfg.Days = def.Days
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = def.Devices
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now().UTC()
	}
	return &Generator{
		cfg:  cfg,
		rand: rand.New(rand.NewSource(cfg.Seed)),
	}
}

var (
	firstNames = []string{
		"aarav", "vivaan", "aditya", "vihaan", "arjun", "sai", "reyansh", "ishaan",
		"ananya", "diya", "saanvi", "aadhya", "kiara", "myra", "pari", "riya",
	}
	pspHandles = []string{"upi", "okaxis", "okhdfc", "oksbi", "okicici", "ybl", "paytm", "ibl"}
	cities     = []string{
		"Mumbai", "Delhi", "Bengaluru", "Hyderabad", "Chennai", "Kolkata",
		"Pune", "Ahmedabad", "Jaipur", "Lucknow", "Kochi", "Indore",
	}
)

// Generate synthesises the configured number of transactions. It
// respects context cancellation.
func (g *Generator) Generate(ctx context.Context) ([]Record, error) {
	window := time.Duration(g.cfg.Days) * 24 * time.Hour
	start := g.cfg.Now.Add(-window)

	out := make([]Record, g.cfg.Count)
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Amounts are uniform in [10, 100000) with paise precision
		amount := decimal.NewFromFloat(10 + g.rand.Float64()*99990).Round(2)
		ts := start.Add(time.Duration(g.rand.Int63n(int64(window)))).Truncate(time.Second)

		tx := &domain.Transaction{
			ID:        g.uuid().String(),
			Sender:    g.handle(),
			Receiver:  g.handle(),
			Amount:    amount,
			Device:    g.cfg.Devices[g.rand.Intn(len(g.cfg.Devices))],
			Location:  cities[g.rand.Intn(len(cities))],
			Timestamp: ts,
			CreatedAt: g.cfg.Now,
		}
		out[i] = Record{
			Transaction: tx,
			IsFraud:     amount.GreaterThan(decimal.NewFromInt(50000)) && tx.Hour() < 5,
		}
	}
	return out, nil
}

func (g *Generator) handle() string {
	name := firstNames[g.rand.Intn(len(firstNames))]
	return fmt.Sprintf("%s%d@%s", name, g.rand.Intn(1000), pspHandles[g.rand.Intn(len(pspHandles))])
}

// uuid draws a version 4 UUID from the seeded source.
func (g *Generator) uuid() uuid.UUID {
	id, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		// rand.Rand reads never fail
		panic(err)
	}
	return id
}

// Transactions strips the labels.
func Transactions(recs []Record) []*domain.Transaction {
	out := make([]*domain.Transaction, len(recs))
	for i, r := range recs {
		out[i] = r.Transaction
	}
	return out
}
