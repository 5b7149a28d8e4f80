package domain

// RuleConfig is a single CEL rule. The expression must evaluate to a bool;
// a true result appends Reason to the transaction's reason list.
type RuleConfig struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Expression string `json:"expression" yaml:"expression"`
	Reason     string `json:"reason" yaml:"reason"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}
