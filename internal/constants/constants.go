package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	GenerationProduction = "production"
	GenerationShadow     = "shadow"
)

const (
	RuleStateShadow  = "shadow"
	RuleStateActive  = "active"
	RuleStateRetired = "retired"
)

const (
	ListKeyPrefix = "list:"
)

const (
	DefaultMongoDBName            = "verdict"
	ProductionResultsCollection   = "production_results"
	ShadowResultsCollection       = "shadow_results"
	DefaultBacktestWindowLimit    = 10000
	MaxBacktestWindowLimit        = 100000
	DefaultBacktestWorkers        = 2
	DefaultBacktestQueueSize      = 16
	BacktestJobRetention          = time.Hour
	BacktestJobSweepInterval      = 5 * time.Minute
	DefaultListResolutionTimeout  = 2 * time.Second
	DefaultResultWriteTimeout     = 5 * time.Second
	DefaultFieldTypeReloadSeconds = 60
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)
