package domain

import "errors"

var (
	// ErrInvalidTimestamp rejects a request before any side effect.
	ErrInvalidTimestamp = errors.New("invalid timestamp format")

	// ErrInvalidInput covers any other malformed request field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("record not found")

	// ErrStoreUnavailable means the record store could not serve a
	// store-dependent step. No flagged record, block or counter
	// increment happens for that transaction.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrScorerUnavailable means no usable model artifact is loaded.
	// Screening continues with rule reasons only.
	ErrScorerUnavailable = errors.New("scorer unavailable")

	// ErrSweepInProgress is returned when a batch sweep is already running.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrRetrainInProgress is returned when a retrain job is already running.
	ErrRetrainInProgress = errors.New("retrain already in progress")

	// ErrNoTrainingData is returned when there is nothing to retrain on.
	ErrNoTrainingData = errors.New("no transactions to train on")
)
