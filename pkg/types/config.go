package types

import (
	"errors"
	"time"
)

// Config holds the engine, storage and collaborator settings. The CLI fills
// it from config.yaml and CASCADE_* environment variables.
type Config struct {
	DataDir     string `json:"data_dir" yaml:"data_dir"`
	LawStore    string `json:"law_store" yaml:"law_store"`
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`

	ParserURL     string        `json:"parser_url,omitempty" yaml:"parser_url,omitempty"`
	ParserTimeout time.Duration `json:"parser_timeout" yaml:"parser_timeout"`

	MaxAutoLayer        int           `json:"max_auto_layer" yaml:"max_auto_layer"`
	MissingPolicy       MissingPolicy `json:"missing_policy" yaml:"missing_policy"`
	Workers             int           `json:"workers" yaml:"workers"`
	ResolverConcurrency int           `json:"resolver_concurrency" yaml:"resolver_concurrency"`
	EntryTimeout        time.Duration `json:"entry_timeout" yaml:"entry_timeout"`
	ClaimTTL            time.Duration `json:"claim_ttl" yaml:"claim_ttl"`
	RetryMaxElapsed     time.Duration `json:"retry_max_elapsed" yaml:"retry_max_elapsed"`

	HTTPAddr  string `json:"http_addr" yaml:"http_addr"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
}

// Supported law store backends.
const (
	LawStoreSQLite   = "sqlite"
	LawStorePostgres = "postgres"
)

// Defaults applied by DefaultConfig.
const (
	DefaultWorkers             = 4
	DefaultResolverConcurrency = 8
	DefaultEntryTimeout        = 2 * time.Minute
	DefaultClaimTTL            = 10 * time.Minute
	DefaultRetryMaxElapsed     = 30 * time.Second
	DefaultParserTimeout       = 90 * time.Second
	DefaultHTTPAddr            = ":8080"
)

// Config validation errors.
var (
	ErrLawStoreUnknown      = errors.New("unknown law store")
	ErrPostgresDSNEmpty     = errors.New("postgres law store requires postgres_dsn")
	ErrMaxAutoLayerInvalid  = errors.New("max_auto_layer must be positive")
	ErrWorkersInvalid       = errors.New("workers must be positive")
	ErrConcurrencyInvalid   = errors.New("resolver_concurrency must be positive")
	ErrTimeoutInvalid       = errors.New("timeouts must be positive")
	ErrMissingPolicyUnknown = errors.New("unknown missing_policy")
)

// knownLawStores lists the law stores that Validate accepts.
var knownLawStores = map[string]bool{
	LawStoreSQLite:   true,
	LawStorePostgres: true,
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{
		LawStore:            LawStoreSQLite,
		ParserTimeout:       DefaultParserTimeout,
		MaxAutoLayer:        DefaultMaxAutoLayer,
		MissingPolicy:       MissingQueue,
		Workers:             DefaultWorkers,
		ResolverConcurrency: DefaultResolverConcurrency,
		EntryTimeout:        DefaultEntryTimeout,
		ClaimTTL:            DefaultClaimTTL,
		RetryMaxElapsed:     DefaultRetryMaxElapsed,
		HTTPAddr:            DefaultHTTPAddr,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Validate checks that the Config is well-formed and returns a sentinel
// error from this package on failure.
func (c Config) Validate() error {
	if !knownLawStores[c.LawStore] {
		return ErrLawStoreUnknown
	}
	if c.LawStore == LawStorePostgres && c.PostgresDSN == "" {
		return ErrPostgresDSNEmpty
	}
	if c.MaxAutoLayer < 1 {
		return ErrMaxAutoLayerInvalid
	}
	if !c.MissingPolicy.Valid() {
		return ErrMissingPolicyUnknown
	}
	if c.Workers < 1 {
		return ErrWorkersInvalid
	}
	if c.ResolverConcurrency < 1 {
		return ErrConcurrencyInvalid
	}
	if c.EntryTimeout <= 0 || c.ClaimTTL <= 0 || c.RetryMaxElapsed <= 0 || c.ParserTimeout <= 0 {
		return ErrTimeoutInvalid
	}
	return nil
}
