package common

import "time"

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvMaxInteractionBins = "MAX_INTERACTION_BINS"
	EnvMinSamplesLeaf     = "MIN_SAMPLES_LEAF"
	EnvObjective          = "OBJECTIVE"
	EnvTopK               = "TOP_K"
	EnvWorkers            = "WORKERS"
	EnvDataPath           = "DATA_PATH"
	EnvReportPath         = "REPORT_PATH"
	EnvServerPort         = "SERVER_PORT"
	EnvMetricsPort        = "METRICS_PORT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvDatasetTimeout     = "DATASET_TIMEOUT"
)

// Configuration defaults
const (
	DefaultMaxInteractionBins = 32
	DefaultMinSamplesLeaf     = 2
	DefaultTopK               = 0 // all pairs
	DefaultServerPort         = 8090
	DefaultMetricsPort        = 9090
	DefaultLogLevel           = "info"
	DefaultReportPath         = "reports"
	DefaultDatasetTimeout     = 30 * time.Second
)

// Limits enforced on configuration
const (
	MaxInteractionBinsLimit = 1024 // 1024 x 1024 is the joint cell ceiling
	MaxWorkers              = 1024
	MinDatasetTimeout       = time.Second
	MaxDatasetTimeout       = 10 * time.Minute
	MaxRequestBytes         = 64 << 20
)

// HTTP server timeouts
const (
	ServerReadTimeout  = 30 * time.Second
	ServerWriteTimeout = 5 * time.Minute
	ServerIdleTimeout  = 120 * time.Second
)

// Error messages
const (
	ErrMsgMethodNotAllowed = "method not allowed"
	ErrMsgInvalidRequest   = "invalid request"
	ErrMsgRankingFailed    = "ranking failed"
)
