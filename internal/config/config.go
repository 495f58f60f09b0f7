// Package config loads the supervisor configuration from TOML and fills in
// the deployment defaults: the primary backend on port 819, the optional AI
// sidecar on 8081, and the environment contract both child processes expect.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/sidekick/internal/logger"
	"github.com/loykin/sidekick/internal/service"
	"github.com/spf13/viper"
)

const (
	DefaultPrimaryPort   = 819
	DefaultSecondaryPort = 8081

	defaultPrimaryName   = "backend"
	defaultSecondaryName = "ai"

	defaultPrimaryCommand   = "kubilitics-backend"
	defaultSecondaryCommand = "kubilitics-ai"

	defaultPrimaryHealthInterval   = 10 * time.Second
	defaultSecondaryHealthInterval = 30 * time.Second

	defaultPrimaryMaxRestarts   = 3
	defaultSecondaryMaxRestarts = 2

	defaultSecondaryRespawnDelay = 5 * time.Second

	// envPort etc. are the variable names the child services read. They are
	// configuration defaults, not protocol: a [primary.env] entry overrides.
	envPort           = "KUBILITICS_PORT"
	envAllowedOrigins = "KUBILITICS_ALLOWED_ORIGINS"
	envDatabasePath   = "KUBILITICS_DATABASE_PATH"
	envMCPEnabled     = "KUBILITICS_MCP_ENABLED"
	envAuxBinary      = "KCLI_BIN"
	auxBinaryBase     = "kcli"

	// DefaultAllowedOrigins covers the desktop shell's webview origins plus
	// the dev-server ports.
	DefaultAllowedOrigins = "tauri://localhost,tauri://,http://tauri.localhost,http://localhost:5173,http://localhost:819"

	appDirName = "kubilitics"
	dbFileName = "kubilitics.db"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Env       []string       `toml:"env" mapstructure:"env"`
	EnvFiles  []string       `toml:"env_files" mapstructure:"env_files"`
	Log       *LogConfig     `toml:"log" mapstructure:"log"`
	Server    *ServerConfig  `toml:"server" mapstructure:"server"`
	Primary   *ServiceConfig `toml:"primary" mapstructure:"primary"`
	Secondary *ServiceConfig `toml:"secondary" mapstructure:"secondary"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// ServerConfig configures the local control API.
type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// ServiceConfig is one service table ([primary] or [secondary]). Zero-valued
// fields take the deployment defaults.
type ServiceConfig struct {
	Name           string        `toml:"name" mapstructure:"name"`
	Port           int           `toml:"port" mapstructure:"port"`
	Command        string        `toml:"command" mapstructure:"command"`
	Args           []string      `toml:"args" mapstructure:"args"`
	ServiceID      string        `toml:"service_id" mapstructure:"service_id"`
	Env            []string      `toml:"env" mapstructure:"env"`
	SearchDirs     []string      `toml:"search_dirs" mapstructure:"search_dirs"`
	WorkDir        string        `toml:"workdir" mapstructure:"workdir"`
	ReadyAttempts  int           `toml:"ready_attempts" mapstructure:"ready_attempts"`
	ReadyInterval  time.Duration `toml:"ready_interval" mapstructure:"ready_interval"`
	HealthInterval time.Duration `toml:"health_interval" mapstructure:"health_interval"`
	HealthTimeout  time.Duration `toml:"health_timeout" mapstructure:"health_timeout"`
	MaxRestarts    uint32        `toml:"max_restarts" mapstructure:"max_restarts"`
	RespawnDelay   time.Duration `toml:"respawn_delay" mapstructure:"respawn_delay"`
	StopGrace      time.Duration `toml:"stop_grace" mapstructure:"stop_grace"`
	Enabled        *bool         `toml:"enabled" mapstructure:"enabled"`
	Log            *LogConfig    `toml:"log" mapstructure:"log"`
}

// Config is the fully-resolved runtime configuration.
type Config struct {
	LogLevel  string
	Log       logger.Config
	Server    ServerConfig
	Primary   service.Spec
	Secondary *service.Spec
}

// Default returns the configuration used when no file is given: both
// services enabled with the stock ports and restart budgets.
func Default() *Config {
	cfg, _ := build(FileConfig{})
	return cfg
}

// Load reads a TOML config file and resolves it against the defaults. An
// empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	return build(fc)
}

func build(fc FileConfig) (*Config, error) {
	globalEnv, err := mergeGlobalEnv(fc)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{Listen: "127.0.0.1:7819", BasePath: "/api"},
	}
	if fc.Server != nil {
		if fc.Server.Listen != "" {
			cfg.Server.Listen = fc.Server.Listen
		}
		if fc.Server.BasePath != "" {
			cfg.Server.BasePath = fc.Server.BasePath
		}
	}
	if fc.Log != nil {
		cfg.LogLevel = fc.Log.Level
		cfg.Log = toLoggerConfig(*fc.Log)
	}

	dataDir := DataDir()
	cfg.Primary = primarySpec(fc.Primary, globalEnv, dataDir, cfg.Log)

	if sc := fc.Secondary; sc == nil || sc.Enabled == nil || *sc.Enabled {
		spec := secondarySpec(sc, globalEnv, cfg.Log)
		cfg.Secondary = &spec
	}
	return cfg, nil
}

func primarySpec(sc *ServiceConfig, globalEnv []string, dataDir string, logCfg logger.Config) service.Spec {
	if sc == nil {
		sc = &ServiceConfig{}
	}
	spec := baseSpec(*sc, logCfg)
	if spec.Name == "" {
		spec.Name = defaultPrimaryName
	}
	if spec.Port == 0 {
		spec.Port = DefaultPrimaryPort
	}
	if spec.Command == "" {
		spec.Command = defaultPrimaryCommand
	}
	if spec.ServiceID == "" {
		spec.ServiceID = defaultPrimaryCommand
	}
	if spec.HealthInterval == 0 {
		spec.HealthInterval = defaultPrimaryHealthInterval
	}
	if spec.MaxRestarts == 0 {
		spec.MaxRestarts = defaultPrimaryMaxRestarts
	}

	spec.Aux = []service.AuxBinary{{EnvVar: envAuxBinary, Base: auxBinaryBase}}
	spec.Env = withEnvDefaults(append(globalEnv, sc.Env...), map[string]string{
		envPort:           strconv.Itoa(spec.Port),
		envAllowedOrigins: DefaultAllowedOrigins,
		envDatabasePath:   filepath.Join(dataDir, dbFileName),
	})
	return spec
}

func secondarySpec(sc *ServiceConfig, globalEnv []string, logCfg logger.Config) service.Spec {
	if sc == nil {
		sc = &ServiceConfig{}
	}
	spec := baseSpec(*sc, logCfg)
	spec.Optional = true
	if spec.Name == "" {
		spec.Name = defaultSecondaryName
	}
	if spec.Port == 0 {
		spec.Port = DefaultSecondaryPort
	}
	if spec.Command == "" {
		spec.Command = defaultSecondaryCommand
	}
	if spec.ServiceID == "" {
		spec.ServiceID = defaultSecondaryCommand
	}
	if spec.HealthInterval == 0 {
		spec.HealthInterval = defaultSecondaryHealthInterval
	}
	if spec.MaxRestarts == 0 {
		spec.MaxRestarts = defaultSecondaryMaxRestarts
	}
	if spec.RespawnDelay == 0 {
		spec.RespawnDelay = defaultSecondaryRespawnDelay
	}

	spec.Env = withEnvDefaults(append(globalEnv, sc.Env...), map[string]string{
		envPort:       strconv.Itoa(spec.Port),
		envMCPEnabled: "true",
	})
	return spec
}

// baseSpec maps the table fields shared by both services.
func baseSpec(sc ServiceConfig, logCfg logger.Config) service.Spec {
	spec := service.Spec{
		Name:           sc.Name,
		Port:           sc.Port,
		Command:        sc.Command,
		Args:           sc.Args,
		ServiceID:      sc.ServiceID,
		SearchDirs:     sc.SearchDirs,
		WorkDir:        sc.WorkDir,
		ReadyAttempts:  sc.ReadyAttempts,
		ReadyInterval:  sc.ReadyInterval,
		HealthInterval: sc.HealthInterval,
		HealthTimeout:  sc.HealthTimeout,
		RespawnDelay:   sc.RespawnDelay,
		StopGrace:      sc.StopGrace,
		MaxRestarts:    sc.MaxRestarts,
		Log:            logCfg,
	}
	if len(spec.SearchDirs) == 0 {
		spec.SearchDirs = service.DefaultSearchDirs()
	}
	if sc.Log != nil {
		spec.Log = overlayLog(spec.Log, *sc.Log)
	}
	return spec
}

// withEnvDefaults appends KEY=VALUE defaults for keys env does not already
// set, so explicit configuration always wins.
func withEnvDefaults(env []string, defaults map[string]string) []string {
	seen := make(map[string]bool, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			seen[kv[:i]] = true
		}
	}
	out := append([]string(nil), env...)
	for _, k := range sortedKeys(defaults) {
		if !seen[k] {
			out = append(out, k+"="+defaults[k])
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// mergeGlobalEnv combines env_files contents with the top-level env list;
// the inline list overrides file entries of the same key.
func mergeGlobalEnv(fc FileConfig) ([]string, error) {
	m := make(map[string]string)
	order := make([]string, 0)
	set := func(kv string) {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			return
		}
		k, v := kv[:i], kv[i+1:]
		if _, ok := m[k]; !ok {
			order = append(order, k)
		}
		m[k] = v
	}
	for _, p := range fc.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		for _, kv := range pairs {
			set(kv)
		}
	}
	for _, kv := range fc.Env {
		set(kv)
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+m[k])
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines; blank lines and # comments ignored.
func loadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.IndexByte(line, '=') > 0 {
			out = append(out, line)
		}
	}
	return out, nil
}

func toLoggerConfig(lc LogConfig) logger.Config {
	return logger.Config{
		Dir:        lc.Dir,
		StdoutPath: lc.Stdout,
		StderrPath: lc.Stderr,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
}

func overlayLog(base logger.Config, lc LogConfig) logger.Config {
	over := toLoggerConfig(lc)
	if over.Dir != "" {
		base.Dir = over.Dir
	}
	if over.StdoutPath != "" {
		base.StdoutPath = over.StdoutPath
	}
	if over.StderrPath != "" {
		base.StderrPath = over.StderrPath
	}
	if over.MaxSizeMB != 0 {
		base.MaxSizeMB = over.MaxSizeMB
	}
	if over.MaxBackups != 0 {
		base.MaxBackups = over.MaxBackups
	}
	if over.MaxAgeDays != 0 {
		base.MaxAgeDays = over.MaxAgeDays
	}
	if over.Compress {
		base.Compress = true
	}
	return base
}
