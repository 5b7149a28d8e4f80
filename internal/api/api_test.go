package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/sweep"
	"github.com/opensource-finance/kestrel/internal/worker"
)

type fakeScreener struct {
	mu   sync.Mutex
	last *domain.ScreeningRequest
	err  error
}

func (f *fakeScreener) Submit(ctx context.Context, req *domain.ScreeningRequest) (*domain.ScreeningResult, error) {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, err := domain.ParseTimestamp(req.Timestamp); req.Timestamp != "" && err != nil {
		return nil, err
	}
	if req.Amount.GreaterThan(decimal.NewFromInt(10000)) {
		return &domain.ScreeningResult{TransactionID: "tx-1", IsFraud: true, Reasons: []string{domain.ReasonHighAmount}}, nil
	}
	return &domain.ScreeningResult{TransactionID: "tx-1", Reasons: []string{domain.ReasonLegit}}, nil
}

type fakeRecords struct {
	flagged []*domain.FlaggedRecord
	txs     []*domain.Transaction
	filter  domain.FlaggedFilter
	offset  int
	err     error
}

func (f *fakeRecords) PageFlagged(ctx context.Context, filter domain.FlaggedFilter) ([]*domain.FlaggedRecord, int, error) {
	f.filter = filter
	if f.err != nil {
		return nil, 0, f.err
	}
	end := min(filter.Offset+filter.Limit, len(f.flagged))
	if filter.Offset >= len(f.flagged) {
		return nil, len(f.flagged), nil
	}
	return f.flagged[filter.Offset:end], len(f.flagged), nil
}

func (f *fakeRecords) PageTransactions(ctx context.Context, offset, limit int) ([]*domain.Transaction, int, error) {
	f.offset = offset
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.txs, len(f.txs), nil
}

func (f *fakeRecords) Ping(ctx context.Context) error {
	return f.err
}

type fakeBlocks struct {
	entries map[string]*domain.BlockedSender
}

func (f *fakeBlocks) Block(ctx context.Context, upiID, reason string) error {
	id := strings.ToLower(upiID)
	f.entries[id] = &domain.BlockedSender{UPIID: id, Reason: reason, BlockedAt: time.Now()}
	return nil
}

func (f *fakeBlocks) Get(ctx context.Context, upiID string) (*domain.BlockedSender, error) {
	if e, ok := f.entries[strings.ToLower(upiID)]; ok {
		return e, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBlocks) List(ctx context.Context) ([]*domain.BlockedSender, error) {
	var out []*domain.BlockedSender
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

type fakeSweeper struct {
	err error
}

func (f *fakeSweeper) Run(ctx context.Context) (*sweep.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sweep.Report{Transactions: 10, Flagged: 2, PerReason: map[string]int{domain.ReasonNightDevice: 2}}, nil
}

type fakeRetrain struct {
	calls int
	err   error
}

func (f *fakeRetrain) Request(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeCounter struct {
	count, threshold int
	fired            uint64
}

func (f *fakeCounter) Count() int     { return f.count }
func (f *fakeCounter) Fired() uint64  { return f.fired }
func (f *fakeCounter) Threshold() int { return f.threshold }

type fakeWorker struct {
	stats worker.Stats
}

func (f *fakeWorker) GetStats() worker.Stats { return f.stats }

type testEnv struct {
	screener *fakeScreener
	records  *fakeRecords
	blocks   *fakeBlocks
	sweeper  *fakeSweeper
	retrain  *fakeRetrain
	server   *Server
}

func newTestEnv(rateLimit int) *testEnv {
	env := &testEnv{
		screener: &fakeScreener{},
		records:  &fakeRecords{},
		blocks:   &fakeBlocks{entries: make(map[string]*domain.BlockedSender)},
		sweeper:  &fakeSweeper{},
		retrain:  &fakeRetrain{},
	}
	env.server = NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, Deps{
		Screener: env.screener,
		Records:  env.records,
		Blocks:   env.blocks,
		Sweeper:  env.sweeper,
		Retrain:  env.retrain,
		Cache:    cache.NewLRUCache(100),
		Version:  "test-v1",
	}, rateLimit)
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)
	return rr
}

func TestCheckFraudEndpoint(t *testing.T) {
	env := newTestEnv(0)

	t.Run("Fraud", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/check_fraud",
			`{"sender":"a@x","receiver":"b@y","amount":15000,"device":"Android","timestamp":"2025-03-10 14:00:00"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var res domain.ScreeningResult
		if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !res.IsFraud || len(res.Reasons) != 1 || res.Reasons[0] != domain.ReasonHighAmount {
			t.Errorf("unexpected result: %+v", res)
		}
		if !env.screener.last.Amount.Equal(decimal.NewFromInt(15000)) {
			t.Errorf("amount not decoded: %s", env.screener.last.Amount)
		}
	})

	t.Run("StringAmount", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/check_fraud",
			`{"sender":"a@x","receiver":"b@y","amount":"99.95","device":"iOS"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"reasons":["Legit transaction"]`) {
			t.Errorf("unexpected body: %s", rr.Body.String())
		}
	})

	t.Run("InvalidTimestamp", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/check_fraud",
			`{"sender":"a@x","receiver":"b@y","amount":10,"timestamp":"half past two"}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "Invalid timestamp format") {
			t.Errorf("unexpected body: %s", rr.Body.String())
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/api/check_fraud", `{not json`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		env.screener.err = fmt.Errorf("%w: disk full", domain.ErrStoreUnavailable)
		defer func() { env.screener.err = nil }()

		rr := env.do(http.MethodPost, "/api/check_fraud", `{"sender":"a@x","receiver":"b@y","amount":10}`)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rr.Code)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		env.screener.err = fmt.Errorf("%w: sender and receiver are required", domain.ErrInvalidInput)
		defer func() { env.screener.err = nil }()

		rr := env.do(http.MethodPost, "/api/check_fraud", `{"amount":10}`)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(10)
	body := `{"sender":"a@x","receiver":"b@y","amount":10}`

	for i := 1; i <= 10; i++ {
		if rr := env.do(http.MethodPost, "/api/check_fraud", body); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}

	rr := env.do(http.MethodPost, "/api/check_fraud", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after 10 requests, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("expected Retry-After header, got %q", rr.Header().Get("Retry-After"))
	}

	t.Run("OtherCallerUnaffected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/check_fraud", strings.NewReader(body))
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200 for another caller, got %d", rr.Code)
		}
	})

	t.Run("BrowseNotCapped", func(t *testing.T) {
		if rr := env.do(http.MethodGet, "/transactions", ""); rr.Code != http.StatusOK {
			t.Errorf("expected browse route to ignore the cap, got %d", rr.Code)
		}
	})
}

func TestFlaggedEndpoint(t *testing.T) {
	env := newTestEnv(0)
	tx := &domain.Transaction{ID: "t", Sender: "a@x", Receiver: "b@y", Amount: decimal.NewFromInt(1)}
	for i := 0; i < 30; i++ {
		env.records.flagged = append(env.records.flagged,
			domain.NewFlaggedRecord(fmt.Sprintf("f%d", i), tx, []string{domain.ReasonHighAmount}, domain.SourceRealtime, time.Now()))
	}

	rr := env.do(http.MethodGet, "/flagged?page=2&upi_id=%20A@X%20", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var page FlaggedPage
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if page.Page != 2 || page.TotalPages != 2 || page.Total != 30 || len(page.Records) != 5 {
		t.Errorf("unexpected page: page=%d pages=%d total=%d records=%d", page.Page, page.TotalPages, page.Total, len(page.Records))
	}
	if env.records.filter.Offset != 25 || env.records.filter.Limit != 25 || env.records.filter.UPIID != "A@X" {
		t.Errorf("unexpected filter: %+v", env.records.filter)
	}

	t.Run("BadPage", func(t *testing.T) {
		if rr := env.do(http.MethodGet, "/flagged?page=zero", ""); rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
		if rr := env.do(http.MethodGet, "/flagged?page=0", ""); rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("EmptyIsArray", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/flagged?page=9", "")
		if !strings.Contains(rr.Body.String(), `"records":[]`) {
			t.Errorf("expected empty array, got %s", rr.Body.String())
		}
	})
}

func TestTransactionsEndpoint(t *testing.T) {
	env := newTestEnv(0)

	rr := env.do(http.MethodGet, "/transactions?page=3", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if env.records.offset != 40 {
		t.Errorf("expected offset 40, got %d", env.records.offset)
	}

	env.records.err = errors.New("connection reset")
	if rr := env.do(http.MethodGet, "/transactions", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 on store failure, got %d", rr.Code)
	}
}

func TestBlockedEndpoints(t *testing.T) {
	env := newTestEnv(0)

	t.Run("Create", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/blocked", `{"upi_id":"Mule@UPI","reason":"chargeback"}`)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var entry domain.BlockedSender
		json.Unmarshal(rr.Body.Bytes(), &entry)
		if entry.UPIID != "mule@upi" || entry.Reason != "chargeback" {
			t.Errorf("unexpected entry: %+v", entry)
		}
	})

	t.Run("CreateRequiresUPIID", func(t *testing.T) {
		if rr := env.do(http.MethodPost, "/blocked", `{"reason":"x"}`); rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("Get", func(t *testing.T) {
		if rr := env.do(http.MethodGet, "/blocked/mule@upi", ""); rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
		if rr := env.do(http.MethodGet, "/blocked/nobody@upi", ""); rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/blocked", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"count":1`) {
			t.Errorf("unexpected body: %s", rr.Body.String())
		}
	})
}

func TestSweepEndpoint(t *testing.T) {
	env := newTestEnv(0)

	rr := env.do(http.MethodPost, "/sweeps", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var report sweep.Report
	json.Unmarshal(rr.Body.Bytes(), &report)
	if report.Flagged != 2 {
		t.Errorf("unexpected report: %+v", report)
	}

	env.sweeper.err = domain.ErrSweepInProgress
	if rr := env.do(http.MethodPost, "/sweeps", ""); rr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rr.Code)
	}
}

func TestRetrainEndpoint(t *testing.T) {
	env := newTestEnv(0)

	if rr := env.do(http.MethodPost, "/model/retrain", ""); rr.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rr.Code)
	}
	if env.retrain.calls != 1 {
		t.Errorf("expected one retrain request, got %d", env.retrain.calls)
	}

	env.retrain.err = errors.New("bus closed")
	if rr := env.do(http.MethodPost, "/model/retrain", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(0)

	rr := env.do(http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"healthy"`) {
		t.Errorf("unexpected health: %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected request id header")
	}

	if rr := env.do(http.MethodGet, "/ready", ""); rr.Code != http.StatusOK {
		t.Errorf("expected ready, got %d", rr.Code)
	}

	if rr := env.do(http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "kestrel_http_requests_total") {
		t.Errorf("expected prometheus exposition, got %d", rr.Code)
	}

	env.records.err = errors.New("down")
	rr = env.do(http.MethodGet, "/health", "")
	if !strings.Contains(rr.Body.String(), `"status":"degraded"`) {
		t.Errorf("expected degraded, got %s", rr.Body.String())
	}
	if rr := env.do(http.MethodGet, "/ready", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when store is down, got %d", rr.Code)
	}
}

func TestHealthReportsRetrainStats(t *testing.T) {
	srv := NewServer(domain.ServerConfig{Host: "localhost", Port: 8080}, Deps{
		Records: &fakeRecords{},
		Counter: &fakeCounter{count: 42, threshold: 500, fired: 3},
		Worker:  &fakeWorker{stats: worker.Stats{SubscriptionCount: 2, Completed: 3, Dropped: 1}},
		Version: "test-v1",
	}, 0)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body struct {
		Status  string `json:"status"`
		Retrain struct {
			Count     int    `json:"count"`
			Threshold int    `json:"threshold"`
			Fired     uint64 `json:"fired"`
		} `json:"retrain"`
		Worker worker.Stats `json:"worker"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("expected healthy, got %q", body.Status)
	}
	if body.Retrain.Count != 42 || body.Retrain.Threshold != 500 || body.Retrain.Fired != 3 {
		t.Errorf("unexpected retrain section: %+v", body.Retrain)
	}
	if body.Worker.SubscriptionCount != 2 || body.Worker.Completed != 3 || body.Worker.Dropped != 1 {
		t.Errorf("unexpected worker section: %+v", body.Worker)
	}

	t.Run("OmittedWithoutComponents", func(t *testing.T) {
		env := newTestEnv(0)
		rr := env.do(http.MethodGet, "/health", "")
		var raw map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if _, ok := raw["retrain"]; ok {
			t.Error("retrain section must be absent without a counter")
		}
		if _, ok := raw["worker"]; ok {
			t.Error("worker section must be absent without a worker")
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(0)
	rr := env.do(http.MethodOptions, "/api/check_fraud", "")
	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
}
