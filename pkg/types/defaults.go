package types

// Defaults mirrored from the environment/configuration table. Concrete
// values are resolved by pkg/config; these are the fallbacks when an
// option is unset.
const (
	DefaultEmbeddingModel  = "text-embedding-3-small"
	DefaultDescriptorModel = "gpt-4.1-mini"
	DefaultVisionModel     = "gpt-4.1-mini"
	DefaultMaxResultTokens = 5000
	DefaultDescribeImages  = true
	DefaultDimensions      = 1024

	DefaultIdleTTLSeconds  = 300 // open question (a): 5 minutes, per §4.4's own suggested default
	DefaultTaskPoolWorkers = 4
	DefaultQueueDepth      = 1024
	DefaultCallTimeoutSecs = 120
	DefaultShutdownGrace   = 10 // seconds
	DefaultSearchTopK      = 5
	MaxSearchTopK          = 50
)
