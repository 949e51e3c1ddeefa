package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/lawcascade/internal/paths"
	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "CASCADE"
)

// Config keys.
const (
	cfgKeyDataDir             = "data_dir"
	cfgKeyLawStore            = "law_store"
	cfgKeyPostgresDSN         = "postgres_dsn"
	cfgKeyParserURL           = "parser_url"
	cfgKeyParserTimeout       = "parser_timeout"
	cfgKeyMaxAutoLayer        = "max_auto_layer"
	cfgKeyMissingPolicy       = "missing_policy"
	cfgKeyWorkers             = "workers"
	cfgKeyResolverConcurrency = "resolver_concurrency"
	cfgKeyEntryTimeout        = "entry_timeout"
	cfgKeyClaimTTL            = "claim_ttl"
	cfgKeyRetryMaxElapsed     = "retry_max_elapsed"
	cfgKeyHTTPAddr            = "http_addr"
	cfgKeyLogLevel            = "log_level"
	cfgKeyLogFormat           = "log_format"
)

// configFile is the document init writes to config.yaml.
type configFile struct {
	DataDir       string `yaml:"data_dir,omitempty"`
	LawStore      string `yaml:"law_store"`
	PostgresDSN   string `yaml:"postgres_dsn,omitempty"`
	ParserURL     string `yaml:"parser_url,omitempty"`
	ParserTimeout string `yaml:"parser_timeout"`
	MaxAutoLayer  int    `yaml:"max_auto_layer"`
	MissingPolicy string `yaml:"missing_policy"`
	Workers       int    `yaml:"workers"`
	EntryTimeout  string `yaml:"entry_timeout"`
	ClaimTTL      string `yaml:"claim_ttl"`
	HTTPAddr      string `yaml:"http_addr"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

func defaultConfigFile(dataDir string) configFile {
	d := types.DefaultConfig()
	return configFile{
		DataDir:       dataDir,
		LawStore:      d.LawStore,
		ParserTimeout: d.ParserTimeout.String(),
		MaxAutoLayer:  d.MaxAutoLayer,
		MissingPolicy: string(d.MissingPolicy),
		Workers:       d.Workers,
		EntryTimeout:  d.EntryTimeout.String(),
		ClaimTTL:      d.ClaimTTL.String(),
		HTTPAddr:      d.HTTPAddr,
		LogLevel:      d.LogLevel,
		LogFormat:     d.LogFormat,
	}
}

// loadConfig reads config.yaml from configDir and CASCADE_* environment
// variables over the built-in defaults. A missing config.yaml is not an
// error.
func loadConfig(configDir string) (*viper.Viper, error) {
	d := types.DefaultConfig()
	v := viper.New()
	v.SetDefault(cfgKeyLawStore, d.LawStore)
	v.SetDefault(cfgKeyParserTimeout, d.ParserTimeout)
	v.SetDefault(cfgKeyMaxAutoLayer, d.MaxAutoLayer)
	v.SetDefault(cfgKeyMissingPolicy, string(d.MissingPolicy))
	v.SetDefault(cfgKeyWorkers, d.Workers)
	v.SetDefault(cfgKeyResolverConcurrency, d.ResolverConcurrency)
	v.SetDefault(cfgKeyEntryTimeout, d.EntryTimeout)
	v.SetDefault(cfgKeyClaimTTL, d.ClaimTTL)
	v.SetDefault(cfgKeyRetryMaxElapsed, d.RetryMaxElapsed)
	v.SetDefault(cfgKeyHTTPAddr, d.HTTPAddr)
	v.SetDefault(cfgKeyLogLevel, d.LogLevel)
	v.SetDefault(cfgKeyLogFormat, d.LogFormat)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without a default are only seen by AutomaticEnv once bound.
	for _, k := range []string{cfgKeyDataDir, cfgKeyPostgresDSN, cfgKeyParserURL} {
		_ = v.BindEnv(k)
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// decodeConfig builds a validated types.Config. dataDirFlag wins over
// data_dir from the file or environment.
func decodeConfig(v *viper.Viper, dataDirFlag string) (types.Config, error) {
	dataDir, err := paths.ResolveDataDir(dataDirFlag, v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg := types.Config{
		DataDir:             dataDir,
		LawStore:            v.GetString(cfgKeyLawStore),
		PostgresDSN:         v.GetString(cfgKeyPostgresDSN),
		ParserURL:           v.GetString(cfgKeyParserURL),
		ParserTimeout:       v.GetDuration(cfgKeyParserTimeout),
		MaxAutoLayer:        v.GetInt(cfgKeyMaxAutoLayer),
		MissingPolicy:       types.MissingPolicy(v.GetString(cfgKeyMissingPolicy)),
		Workers:             v.GetInt(cfgKeyWorkers),
		ResolverConcurrency: v.GetInt(cfgKeyResolverConcurrency),
		EntryTimeout:        v.GetDuration(cfgKeyEntryTimeout),
		ClaimTTL:            v.GetDuration(cfgKeyClaimTTL),
		RetryMaxElapsed:     v.GetDuration(cfgKeyRetryMaxElapsed),
		HTTPAddr:            v.GetString(cfgKeyHTTPAddr),
		LogLevel:            v.GetString(cfgKeyLogLevel),
		LogFormat:           v.GetString(cfgKeyLogFormat),
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveConfig loads and decodes the configuration selected by flags.
func resolveConfig(flags *rootFlags) (types.Config, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return types.Config{}, err
	}
	return decodeConfig(v, flags.dataDir)
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. It reports whether the file was written.
func writeConfigIfMissing(path, dataDir string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	cfg := defaultConfigFile(dataDir)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# Cascade configuration. Every key can be overridden with CASCADE_<KEY>.\n")
	return true, os.WriteFile(path, append(header, data...), 0o644)
}
