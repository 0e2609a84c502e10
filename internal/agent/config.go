package agent

import "github.com/flemzord/agentbridge/internal/provider"

// Default values for LoopConfig.
const (
	DefaultModel         = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens     = 4096
	DefaultMaxIterations = 0 // 0 means unlimited.
	DefaultTokenBudget   = 0 // 0 means unlimited.
	DefaultLoopThreshold = 0 // 0 disables loop detection.
)

// LoopConfig controls the behavior of the loop driver.
type LoopConfig struct {
	// SystemPrompt is the base system prompt. "{{date}}" is replaced with
	// the current date. Empty selects DefaultSystemPrompt.
	SystemPrompt string `yaml:"system_prompt"`

	// DefaultModel is used when a batch does not name a model.
	DefaultModel string `yaml:"default_model"`

	// DefaultMaxTokens is used when a batch does not set max_tokens.
	DefaultMaxTokens int `yaml:"default_max_tokens"`

	// MaxIterations caps the number of model calls per execution.
	// Zero means unlimited.
	MaxIterations int `yaml:"max_iterations"`

	// TokenBudget is the cumulative token limit (input + output) per
	// execution. Zero means unlimited.
	TokenBudget int `yaml:"token_budget"`

	// LoopThreshold is how many times the same tool call (name + args)
	// can repeat before the execution is considered stuck. Zero disables
	// the check.
	LoopThreshold int `yaml:"loop_threshold"`

	// Workspace is the working directory handed to tools.
	Workspace string `yaml:"workspace"`
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c LoopConfig) withDefaults() LoopConfig {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	if c.DefaultMaxTokens <= 0 {
		c.DefaultMaxTokens = DefaultMaxTokens
	}
	if c.MaxIterations < 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.TokenBudget < 0 {
		c.TokenBudget = DefaultTokenBudget
	}
	if c.LoopThreshold < 0 {
		c.LoopThreshold = DefaultLoopThreshold
	}
	return c
}

// resolve fills the unset fields of p from the configuration.
func (c LoopConfig) resolve(p Params) Params {
	if p.Model == "" {
		p.Model = c.DefaultModel
	}
	if p.Provider == "" {
		p.Provider = provider.KindAnthropic
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = c.DefaultMaxTokens
	}
	return p
}
