package seed

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	gen := NewGenerator(Config{Count: 200, Seed: 7, Now: fixedNow})

	recs, err := gen.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(recs) != 200 {
		t.Fatalf("expected 200 records, got %d", len(recs))
	}

	low := decimal.NewFromInt(10)
	high := decimal.NewFromInt(100000)
	earliest := fixedNow.Add(-30 * 24 * time.Hour)
	devices := map[string]bool{"Android": true, "iOS": true, "Windows": true, "Linux": true}
	ids := make(map[string]bool)

	for _, r := range recs {
		if r.Amount.LessThan(low) || r.Amount.GreaterThan(high) {
			t.Errorf("amount out of range: %s", r.Amount)
		}
		if r.Timestamp.Before(earliest) || r.Timestamp.After(fixedNow) {
			t.Errorf("timestamp out of window: %s", r.Timestamp)
		}
		if !devices[r.Device] {
			t.Errorf("unexpected device %q", r.Device)
		}
		if !strings.Contains(r.Sender, "@") || !strings.Contains(r.Receiver, "@") {
			t.Errorf("malformed handles %q -> %q", r.Sender, r.Receiver)
		}
		if ids[r.ID] {
			t.Errorf("duplicate id %s", r.ID)
		}
		ids[r.ID] = true

		wantFraud := r.Amount.GreaterThan(decimal.NewFromInt(50000)) && r.Hour() < 5
		if r.IsFraud != wantFraud {
			t.Errorf("label mismatch for %s", r.ID)
		}
	}

	t.Run("Deterministic", func(t *testing.T) {
		again, _ := NewGenerator(Config{Count: 200, Seed: 7, Now: fixedNow}).Generate(ctx)
		for i := range recs {
			if recs[i].ID != again[i].ID || !recs[i].Amount.Equal(again[i].Amount) {
				t.Fatalf("record %d differs between runs with the same seed", i)
			}
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := NewGenerator(Config{Count: 5}).Generate(cctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestCSVRoundTrip(t *testing.T) {
	recs, err := NewGenerator(Config{Count: 20, Seed: 3, Now: fixedNow}).Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, recs); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "txn_id,sender,receiver,amount,time,location,device,is_fraud\n") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	txs, err := ReadCSV(&buf, fixedNow)
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(txs) != len(recs) {
		t.Fatalf("expected %d transactions, got %d", len(recs), len(txs))
	}
	for i, tx := range txs {
		want := recs[i]
		if tx.ID != want.ID || tx.Sender != want.Sender || tx.Device != want.Device {
			t.Errorf("row %d mismatch: %+v vs %+v", i, tx, want.Transaction)
		}
		if !tx.Amount.Equal(want.Amount) {
			t.Errorf("row %d amount: %s vs %s", i, tx.Amount, want.Amount)
		}
		if !tx.Timestamp.Equal(want.Timestamp) {
			t.Errorf("row %d time: %s vs %s", i, tx.Timestamp, want.Timestamp)
		}
	}
}

func TestReadCSV(t *testing.T) {
	t.Run("ColumnsByName", func(t *testing.T) {
		in := "device,amount,time,sender,receiver,txn_id\n" +
			"iOS,99.5,2025-03-10 02:15:00,Alice@UPI,bob@okaxis,t-1\n"
		txs, err := ReadCSV(strings.NewReader(in), fixedNow)
		if err != nil {
			t.Fatalf("ReadCSV failed: %v", err)
		}
		if len(txs) != 1 {
			t.Fatalf("expected 1 transaction, got %d", len(txs))
		}
		tx := txs[0]
		if tx.Sender != "alice@upi" || tx.Hour() != 2 || tx.Location != "" {
			t.Errorf("unexpected transaction: %+v", tx)
		}
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("txn_id,sender,receiver,amount\n"), fixedNow)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("BadTimestamp", func(t *testing.T) {
		in := "txn_id,sender,receiver,amount,time\nt-1,a@x,b@y,10,not-a-time\n"
		_, err := ReadCSV(strings.NewReader(in), fixedNow)
		if !errors.Is(err, domain.ErrInvalidTimestamp) {
			t.Errorf("expected ErrInvalidTimestamp, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "line 2") {
			t.Errorf("expected line number in error, got %v", err)
		}
	})

	t.Run("BadAmount", func(t *testing.T) {
		in := "txn_id,sender,receiver,amount,time\nt-1,a@x,b@y,ten,2025-03-10 10:00:00\n"
		if _, err := ReadCSV(strings.NewReader(in), fixedNow); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		txs, err := ReadCSV(strings.NewReader(""), fixedNow)
		if err != nil || len(txs) != 0 {
			t.Errorf("expected empty result, got %d (err=%v)", len(txs), err)
		}
	})
}

func TestReadRecords(t *testing.T) {
	t.Run("Labels", func(t *testing.T) {
		in := "txn_id,sender,receiver,amount,time,is_fraud\n" +
			"t-1,a@x,b@y,60000,2025-03-10 02:00:00,true\n" +
			"t-2,a@x,b@y,10,2025-03-10 12:00:00,0\n" +
			"t-3,a@x,b@y,10,2025-03-10 12:00:00,\n"
		recs, err := ReadRecords(strings.NewReader(in), fixedNow)
		if err != nil {
			t.Fatalf("ReadRecords failed: %v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("expected 3 records, got %d", len(recs))
		}
		if !recs[0].IsFraud || recs[1].IsFraud || recs[2].IsFraud {
			t.Errorf("unexpected labels: %v %v %v", recs[0].IsFraud, recs[1].IsFraud, recs[2].IsFraud)
		}
	})

	t.Run("BadLabel", func(t *testing.T) {
		in := "txn_id,sender,receiver,amount,time,is_fraud\nt-1,a@x,b@y,10,2025-03-10 12:00:00,maybe\n"
		if _, err := ReadRecords(strings.NewReader(in), fixedNow); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("GeneratedLabelsSurvive", func(t *testing.T) {
		recs, err := NewGenerator(Config{Count: 200, Seed: 11, Now: fixedNow}).Generate(context.Background())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		var buf bytes.Buffer
		if err := WriteCSV(&buf, recs); err != nil {
			t.Fatalf("WriteCSV failed: %v", err)
		}
		got, err := ReadRecords(&buf, fixedNow)
		if err != nil {
			t.Fatalf("ReadRecords failed: %v", err)
		}
		for i := range recs {
			if got[i].IsFraud != recs[i].IsFraud {
				t.Fatalf("row %d label mismatch", i)
			}
		}
	})
}

type batchStore struct {
	batches [][]*domain.Transaction
	err     error
}

func (s *batchStore) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, txs)
	return nil
}

type recordingBlocker struct {
	blocked map[string]string
}

func (b *recordingBlocker) Block(ctx context.Context, upiID, reason string) error {
	b.blocked[upiID] = reason
	return nil
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	recs, _ := NewGenerator(Config{Count: 450, Seed: 1, Now: fixedNow}).Generate(ctx)

	store := &batchStore{}
	if err := Import(ctx, store, Transactions(recs)); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(store.batches) != 3 {
		t.Errorf("expected 3 batches, got %d", len(store.batches))
	}
	if len(store.batches[2]) != 50 {
		t.Errorf("expected last batch of 50, got %d", len(store.batches[2]))
	}

	failing := &batchStore{err: errors.New("locked")}
	if err := Import(ctx, failing, Transactions(recs)); err == nil {
		t.Error("expected store error to propagate")
	}
}

func TestBlockSamples(t *testing.T) {
	b := &recordingBlocker{blocked: make(map[string]string)}
	if err := BlockSamples(context.Background(), b); err != nil {
		t.Fatalf("BlockSamples failed: %v", err)
	}
	if len(b.blocked) != 2 {
		t.Errorf("expected 2 sample entries, got %d", len(b.blocked))
	}
	if _, ok := b.blocked["scam@upi"]; !ok {
		t.Error("expected scam@upi to be blocked")
	}
}
