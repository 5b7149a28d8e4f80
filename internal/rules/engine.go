// Package rules provides the CEL-Go based rule evaluation engine.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BlockChecker reports whether a sender is on the block list.
type BlockChecker interface {
	IsBlocked(ctx context.Context, upiID string) (bool, error)
}

// Params are the configured values exposed to rule expressions.
type Params struct {
	Blacklist            []string
	AllowedDevices       []string
	NightDevices         []string
	HighAmountThreshold  float64
	NightAmountThreshold float64
	NightHourCutoff      int
}

// ParamsFromConfig collects the rule parameters from the service config.
func ParamsFromConfig(cfg *domain.Config) Params {
	return Params{
		Blacklist:            cfg.Screening.Blacklist,
		AllowedDevices:       cfg.Screening.AllowedDevices,
		NightDevices:         cfg.Sweep.NightDevices,
		HighAmountThreshold:  cfg.Screening.HighAmountThreshold,
		NightAmountThreshold: cfg.Sweep.NightAmountThreshold,
		NightHourCutoff:      cfg.Screening.NightHourCutoff,
	}
}

// Engine evaluates an ordered list of CEL rules against one transaction.
// Each matching rule contributes its reason once, in rule order.
//
// Amount thresholds are compared as decimals before evaluation and reach
// the expressions as the bools high_amount and night_high_amount. The
// amount variable is a float64 and must not be used for threshold tests.
type Engine struct {
	mu     sync.RWMutex
	env    *cel.Env
	rules  []*CompiledRule
	params Params
	blocks BlockChecker

	highAmount  decimal.Decimal
	nightAmount decimal.Decimal
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a rule engine. blocks may be nil, in which case
// sender_blocked is always false and Evaluate does no I/O.
func NewEngine(params Params, blocks BlockChecker) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("sender", cel.StringType),
		cel.Variable("receiver", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("day_of_week", cel.IntType),
		cel.Variable("device", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("sender_blocked", cel.BoolType),
		cel.Variable("blacklist", cel.ListType(cel.StringType)),
		cel.Variable("allowed_devices", cel.ListType(cel.StringType)),
		cel.Variable("night_devices", cel.ListType(cel.StringType)),
		cel.Variable("high_amount", cel.BoolType),
		cel.Variable("night_high_amount", cel.BoolType),
		cel.Variable("night_hour_cutoff", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	// Handles compare case-insensitively
	bl := make([]string, len(params.Blacklist))
	for i, h := range params.Blacklist {
		bl[i] = strings.ToLower(strings.TrimSpace(h))
	}
	params.Blacklist = bl

	return &Engine{
		env:         env,
		params:      params,
		blocks:      blocks,
		highAmount:  decimal.NewFromFloat(params.HighAmountThreshold),
		nightAmount: decimal.NewFromFloat(params.NightAmountThreshold),
	}, nil
}

// LoadRules replaces the loaded rules. Disabled rules are skipped and
// the order of configs is the evaluation order.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	compiled := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		c, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs every loaded rule against tx and returns the reasons of
// the rules that matched. The block-list read is the only I/O; its
// failure is returned as domain.ErrStoreUnavailable.
func (e *Engine) Evaluate(ctx context.Context, tx *domain.Transaction) ([]string, error) {
	blocked := false
	if e.blocks != nil {
		var err error
		blocked, err = e.blocks.IsBlocked(ctx, tx.Sender)
		if err != nil {
			return nil, fmt.Errorf("%w: block list lookup: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return e.Match(tx, blocked), nil
}

// Match evaluates the rules with a known block status. It never fails;
// a rule whose evaluation errors is logged and treated as not matching.
func (e *Engine) Match(tx *domain.Transaction, senderBlocked bool) []string {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	activation := e.activation(tx, senderBlocked)

	reasons := make([]string, 0, 2)
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			slog.Warn("rule evaluation failed",
				"rule_id", rule.Config.ID,
				"tx_id", tx.ID,
				"error", err,
			)
			continue
		}
		if matched(out) {
			reasons = append(reasons, rule.Config.Reason)
		}
	}
	return reasons
}

func (e *Engine) activation(tx *domain.Transaction, senderBlocked bool) map[string]any {
	return map[string]any{
		"sender":                 strings.ToLower(tx.Sender),
		"receiver":               strings.ToLower(tx.Receiver),
		"amount":                 tx.Amount.InexactFloat64(),
		"hour":                   int64(tx.Hour()),
		"day_of_week":            int64(tx.DayOfWeek()),
		"device":                 tx.Device,
		"location":               tx.Location,
		"sender_blocked":         senderBlocked,
		"blacklist":              e.params.Blacklist,
		"allowed_devices":        e.params.AllowedDevices,
		"night_devices":          e.params.NightDevices,
		"high_amount":            tx.Amount.GreaterThan(e.highAmount),
		"night_high_amount":      tx.Amount.GreaterThan(e.nightAmount),
		"night_hour_cutoff":      int64(e.params.NightHourCutoff),
	}
}

func matched(val ref.Val) bool {
	b, ok := val.(types.Bool)
	return ok && bool(b)
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	if cfg.Reason == "" {
		return nil, fmt.Errorf("rule %s: reason is required", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
