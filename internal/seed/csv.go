package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// csvHeader is the column layout of the historical transaction export.
var csvHeader = []string{"txn_id", "sender", "receiver", "amount", "time", "location", "device", "is_fraud"}

const csvTimeLayout = "2006-01-02 15:04:05"

// WriteCSV writes recs with a header row.
func WriteCSV(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.ID,
			r.Sender,
			r.Receiver,
			r.Amount.StringFixed(2),
			r.Timestamp.Format(csvTimeLayout),
			r.Location,
			r.Device,
			strconv.FormatBool(r.IsFraud),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses transactions from r and drops the labels.
func ReadCSV(r io.Reader, now time.Time) ([]*domain.Transaction, error) {
	recs, err := ReadRecords(r, now)
	if err != nil {
		return nil, err
	}
	return Transactions(recs), nil
}

// ReadRecords parses labelled transactions from r. Columns are matched by
// header name; txn_id, sender, receiver, amount and time are required, the
// rest are optional. Line numbers in errors are 1-based and count the header.
func ReadRecords(r io.Reader, now time.Time) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"txn_id", "sender", "receiver", "amount", "time"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrInvalidInput, name)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var recs []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		amount, err := decimal.NewFromString(field(row, "amount"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: bad amount %q", line, domain.ErrInvalidInput, field(row, "amount"))
		}

		req := domain.ScreeningRequest{
			Sender:    field(row, "sender"),
			Receiver:  field(row, "receiver"),
			Amount:    amount,
			Device:    field(row, "device"),
			Timestamp: field(row, "time"),
			Location:  field(row, "location"),
		}
		if req.Timestamp == "" {
			return nil, fmt.Errorf("line %d: %w: empty time", line, domain.ErrInvalidTimestamp)
		}

		tx, err := req.ToTransaction(field(row, "txn_id"), now)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if tx.ID == "" {
			return nil, fmt.Errorf("line %d: %w: empty txn_id", line, domain.ErrInvalidInput)
		}

		var fraud bool
		if raw := field(row, "is_fraud"); raw != "" {
			if fraud, err = strconv.ParseBool(raw); err != nil {
				return nil, fmt.Errorf("line %d: %w: bad is_fraud %q", line, domain.ErrInvalidInput, raw)
			}
		}
		recs = append(recs, Record{Transaction: tx, IsFraud: fraud})
	}
	return recs, nil
}
