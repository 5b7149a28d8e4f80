package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FlaggedRecord is a screened transaction copy together with its verdict.
// Records are never edited; the batch sweep rebuilds the whole collection.
type FlaggedRecord struct {
	ID   string `json:"id"`
	TxID string `json:"txn_id"`

	// Copy of the transaction fields
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Amount    decimal.Decimal `json:"amount"`
	Device    string          `json:"device"`
	Location  string          `json:"location,omitempty"`
	Timestamp time.Time       `json:"time"`

	// Verdict
	Reasons   []string  `json:"fraud_reasons"`
	IsFraud   bool      `json:"is_fraud"`
	CheckedAt time.Time `json:"checked_at"`

	// Source is "realtime" for pipeline records and "batch" for sweep records.
	Source string `json:"source"`
}

// Flagged record sources
const (
	SourceRealtime = "realtime"
	SourceBatch    = "batch"
)

// NewFlaggedRecord copies tx into a new record.
func NewFlaggedRecord(id string, tx *Transaction, reasons []string, source string, checkedAt time.Time) *FlaggedRecord {
	r := make([]string, len(reasons))
	copy(r, reasons)

	return &FlaggedRecord{
		ID:        id,
		TxID:      tx.ID,
		Sender:    tx.Sender,
		Receiver:  tx.Receiver,
		Amount:    tx.Amount,
		Device:    tx.Device,
		Location:  tx.Location,
		Timestamp: tx.Timestamp,
		Reasons:   r,
		IsFraud:   len(r) > 0,
		CheckedAt: checkedAt.UTC(),
		Source:    source,
	}
}

// FlaggedFilter selects a page of flagged records.
type FlaggedFilter struct {
	// UPIID matches sender or receiver, case-insensitive substring.
	UPIID  string
	Offset int
	Limit  int
}

// BlockedSender is a block-list entry. Exactly one per UPI handle.
type BlockedSender struct {
	UPIID     string    `json:"upi_id"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

// ScreeningResult is returned to the caller of the ingest operation.
type ScreeningResult struct {
	TransactionID string   `json:"transaction_id"`
	IsFraud       bool     `json:"is_fraud"`
	Reasons       []string `json:"reasons"`
}

// Fraud reasons produced by the real-time rules and the scorer.
const (
	ReasonBlacklisted     = "Blacklisted UPI ID"
	ReasonSenderBlocked   = "Sender already blocked"
	ReasonHighAmount      = "High transaction amount"
	ReasonSuspiciousHours = "Transaction during suspicious hours"
	ReasonUnknownDevice   = "Unknown device"
	ReasonModel           = "Detected as fraud by ML model"
	ReasonLegit           = "Legit transaction"
)

// Fraud reasons produced by the batch sweep.
const (
	ReasonNightHighAmount = "High amount during night hours"
	ReasonReceiverBurst   = "More than 5 txns to same receiver in 5 minutes"
	ReasonRepeatedPair    = "Repeated sender-receiver pair in 1 day"
	ReasonNightDevice     = "Suspicious device used at night"
	ReasonSenderBurst     = "High frequency by sender in 1 minute"
)
