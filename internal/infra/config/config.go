package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Includes   []string         `yaml:"includes,omitempty"`
	Engine     EngineConfig     `yaml:"engine"`
	Registry   RegistryConfig   `yaml:"registry"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	LLM        LLMConfig        `yaml:"llm"`
	Tools      ToolsConfig      `yaml:"tools"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Graph      GraphConfig      `yaml:"graph"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// EngineConfig holds execution engine settings.
type EngineConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	// RequestTimeout is the per-request deadline the CLI imposes. Zero means none.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ChunkSize      int           `yaml:"chunk_size"`
	ChunkOverlap   int           `yaml:"chunk_overlap"`
}

// RegistryConfig holds agent discovery settings.
type RegistryConfig struct {
	Dirs           []string      `yaml:"dirs"`
	Extension      string        `yaml:"extension"`
	Watch          bool          `yaml:"watch"`
	Debounce       time.Duration `yaml:"debounce"`
	ResyncSchedule string        `yaml:"resync_schedule"` // cron expression or duration, "" = off
}

// EnrichmentConfig holds defaults for retrieval and graph enrichment.
type EnrichmentConfig struct {
	TopK     int           `yaml:"top_k"`
	MinScore float64       `yaml:"min_score"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// FailoverConfig lists providers tried, in order, when the default fails.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig paces outgoing requests per provider.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai" or "ollama"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// ToolsConfig holds tool system settings.
type ToolsConfig struct {
	SandboxRoot string        `yaml:"sandbox_root"`
	MaxFileSize int64         `yaml:"max_file_size"`
	Confirm     ConfirmConfig `yaml:"confirm"`
	MCPServers  []MCPServer   `yaml:"mcp_servers,omitempty"`
}

// ConfirmConfig controls approval of tools that require confirmation.
type ConfirmConfig struct {
	AlwaysApprove []string `yaml:"always_approve"`
	AlwaysDeny    []string `yaml:"always_deny"`
	Interactive   bool     `yaml:"interactive"`
}

// MCPServer configures an MCP server connection.
type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	// Confirm marks every tool of this server as requiring confirmation.
	Confirm bool `yaml:"confirm"`
}

// RetrievalConfig holds the local retrieval index settings.
type RetrievalConfig struct {
	Enabled         bool     `yaml:"enabled"`
	DBPath          string   `yaml:"db_path"`
	IndexDirs       []string `yaml:"index_dirs"`
	Extensions      []string `yaml:"extensions"`
	ReindexSchedule string   `yaml:"reindex_schedule"`
}

// GraphConfig holds the structural graph service client settings.
type GraphConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "stdout", "stderr", "noop"
	SampleRatio float64 `yaml:"sample_ratio"`
}

// defaultDataDir returns the persistent data directory under $HOME/.aura.
// Falls back to "./.aura" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aura"
	}
	return filepath.Join(home, ".aura")
}

// Defaults returns a Config with sensible defaults. No LLM provider is
// configured; a local Ollama is assumed.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Engine: EngineConfig{
			MaxIterations: 10,
			ChunkSize:     1000,
			ChunkOverlap:  200,
		},
		Registry: RegistryConfig{
			Dirs:      []string{"./agents"},
			Extension: ".md",
			Watch:     true,
			Debounce:  150 * time.Millisecond,
		},
		Enrichment: EnrichmentConfig{
			TopK:    5,
			Timeout: 10 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "ollama",
			Providers: []ProviderConfig{{
				Name:    "ollama",
				Type:    "ollama",
				BaseURL: "http://localhost:11434",
				Model:   "llama3.1",
			}},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 2,
				Burst:             4,
			},
		},
		Tools: ToolsConfig{
			SandboxRoot: ".",
			MaxFileSize: 1 << 20,
			Confirm: ConfirmConfig{
				AlwaysApprove: []string{"read_file", "list_dir"},
				Interactive:   true,
			},
		},
		Retrieval: RetrievalConfig{
			DBPath:     filepath.Join(dataDir, "retrieval.db"),
			Extensions: []string{".md", ".txt", ".go"},
		},
		Graph: GraphConfig{
			Timeout: 10 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter:    "noop",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML config file, expands ${VAR} references, applies env var
// overrides, decrypts secrets and validates the result. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	data = expandEnv(data)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}
		// The main file takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("AURA_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${VAR} references with environment values. Bare $VAR
// is left alone so literal dollar signs in prompts and URLs survive.
func expandEnv(data []byte) []byte {
	s := string(data)
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		b.WriteString(os.Getenv(s[start+2 : start+end]))
		s = s[start+end+1:]
	}
	return []byte(b.String())
}

// ApplyEnvOverrides maps AURA_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AURA_ENGINE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxIterations = n
		}
	}
	if v := os.Getenv("AURA_ENGINE_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.RequestTimeout = d
		}
	}
	if v := os.Getenv("AURA_REGISTRY_DIRS"); v != "" {
		cfg.Registry.Dirs = splitAndTrim(v, ",")
	}
	if v := os.Getenv("AURA_REGISTRY_WATCH"); v != "" {
		cfg.Registry.Watch = v == "true"
	}
	if v := os.Getenv("AURA_REGISTRY_RESYNC_SCHEDULE"); v != "" {
		cfg.Registry.ResyncSchedule = v
	}
	if v := os.Getenv("AURA_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("AURA_TOOLS_SANDBOX_ROOT"); v != "" {
		cfg.Tools.SandboxRoot = v
	}
	if v := os.Getenv("AURA_TOOLS_CONFIRM_INTERACTIVE"); v != "" {
		cfg.Tools.Confirm.Interactive = v == "true"
	}
	if v := os.Getenv("AURA_RETRIEVAL_DB_PATH"); v != "" {
		cfg.Retrieval.DBPath = v
	}
	if v := os.Getenv("AURA_GRAPH_URL"); v != "" {
		cfg.Graph.URL = v
	}
	if v := os.Getenv("AURA_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AURA_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("AURA_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("AURA_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	// Per-provider API keys: AURA_LLM_PROVIDER_<NAME>_API_KEY.
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if v := os.Getenv("AURA_LLM_PROVIDER_" + envName(p.Name) + "_API_KEY"); v != "" {
			p.APIKey = v
		}
	}
}

// envName upper-cases name and replaces characters that are not valid in
// environment variable names.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets decrypts "enc:..." provider and graph API keys.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		v, err := decryptField(p.APIKey, passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", p.Name, err)
		}
		p.APIKey = v
	}
	v, err := decryptField(cfg.Graph.APIKey, passphrase)
	if err != nil {
		return fmt.Errorf("graph api_key: %w", err)
	}
	cfg.Graph.APIKey = v
	return nil
}

func decryptField(value, passphrase string) (string, error) {
	if !strings.HasPrefix(value, "enc:") {
		return value, nil
	}
	return DecryptValue(strings.TrimPrefix(value, "enc:"), passphrase)
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// newGCM derives a 32-byte Argon2id key from passphrase and salt.
func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
