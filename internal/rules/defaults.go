package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// ScreeningRules returns the real-time rules in evaluation order.
func ScreeningRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:         "blacklisted-handle",
			Name:       "Blacklisted UPI ID",
			Expression: `sender in blacklist || receiver in blacklist`,
			Reason:     domain.ReasonBlacklisted,
			Enabled:    true,
		},
		{
			ID:         "sender-blocked",
			Name:       "Sender already blocked",
			Expression: `sender_blocked`,
			Reason:     domain.ReasonSenderBlocked,
			Enabled:    true,
		},
		{
			ID:         "high-amount",
			Name:       "High transaction amount",
			Expression: `high_amount`,
			Reason:     domain.ReasonHighAmount,
			Enabled:    true,
		},
		{
			ID:         "suspicious-hours",
			Name:       "Transaction during suspicious hours",
			Expression: `hour < night_hour_cutoff`,
			Reason:     domain.ReasonSuspiciousHours,
			Enabled:    true,
		},
		{
			ID:         "unknown-device",
			Name:       "Unknown device",
			Expression: `!(device in allowed_devices)`,
			Reason:     domain.ReasonUnknownDevice,
			Enabled:    true,
		},
	}
}

// SweepRowRules returns the per-transaction predicates of the batch sweep.
// The windowed rules are grouping algorithms and live in the sweep package.
func SweepRowRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:         "night-high-amount",
			Name:       "High amount during night hours",
			Expression: `night_high_amount && hour < night_hour_cutoff`,
			Reason:     domain.ReasonNightHighAmount,
			Enabled:    true,
		},
		{
			ID:         "night-device",
			Name:       "Suspicious device used at night",
			Expression: `device in night_devices && hour < night_hour_cutoff`,
			Reason:     domain.ReasonNightDevice,
			Enabled:    true,
		},
	}
}
