package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateEngine(cfg, ve)
	validateRegistry(cfg, ve)
	validateEnrichment(cfg, ve)
	validateLLM(cfg, ve)
	validateTools(cfg, ve)
	validateRetrieval(cfg, ve)
	validateGraph(cfg, ve)
	validateObservability(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateEngine(cfg *Config, ve *ValidationError) {
	e := cfg.Engine
	if e.MaxIterations <= 0 {
		ve.Add("engine.max_iterations must be > 0")
	}
	if e.RequestTimeout < 0 {
		ve.Add("engine.request_timeout must be >= 0")
	}
	if e.ChunkSize <= 0 {
		ve.Add("engine.chunk_size must be > 0")
	}
	if e.ChunkOverlap < 0 || e.ChunkOverlap >= e.ChunkSize {
		ve.Add("engine.chunk_overlap must be >= 0 and smaller than chunk_size")
	}
}

func validateRegistry(cfg *Config, ve *ValidationError) {
	r := cfg.Registry
	if len(r.Dirs) == 0 {
		ve.Add("registry.dirs must not be empty")
	}
	for i, d := range r.Dirs {
		if strings.TrimSpace(d) == "" {
			ve.Add("registry.dirs[%d] must not be empty", i)
		}
	}
	if r.Extension == "" {
		ve.Add("registry.extension must not be empty")
	}
	if r.Debounce < 0 {
		ve.Add("registry.debounce must be >= 0")
	}
	validateSchedule("registry.resync_schedule", r.ResyncSchedule, ve)
}

func validateEnrichment(cfg *Config, ve *ValidationError) {
	e := cfg.Enrichment
	if e.TopK <= 0 {
		ve.Add("enrichment.top_k must be > 0")
	}
	if e.MinScore < 0 || e.MinScore > 1 {
		ve.Add("enrichment.min_score must be between 0 and 1")
	}
	if e.Timeout < 0 {
		ve.Add("enrichment.timeout must be >= 0")
	}
}

var validProviderTypes = map[string]bool{
	"openai": true,
	"ollama": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must not be empty")
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, ollama)", i, p.Type)
		}
		if p.Type == "openai" && p.APIKey == "" && p.BaseURL == "" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via AURA_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, envName(p.Name))
		}
		if p.BaseURL != "" {
			validateURL(fmt.Sprintf("llm.providers[%d].base_url", i), p.BaseURL, ve)
		}
		if p.ConnTimeout < 0 || p.RespTimeout < 0 {
			ve.Add("llm.providers[%d] (%s): timeouts must be >= 0", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		if len(cfg.LLM.Failover.Fallbacks) == 0 {
			ve.Add("llm.failover.fallbacks must not be empty when failover is enabled")
		}
		for i, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks[%d] %q does not match any configured provider", i, name)
			}
		}
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled && (cb.Timeout < 0 || cb.Interval < 0) {
		ve.Add("llm.circuit_breaker durations must be >= 0")
	}
	if rl := cfg.LLM.RateLimit; rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			ve.Add("llm.rate_limit.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if rl.Burst < 0 {
			ve.Add("llm.rate_limit.burst must be >= 0")
		}
	}
}

var validMCPTransports = map[string]bool{"stdio": true, "http": true}

func validateTools(cfg *Config, ve *ValidationError) {
	t := cfg.Tools
	if t.SandboxRoot == "" {
		ve.Add("tools.sandbox_root must not be empty")
	}
	if t.MaxFileSize <= 0 {
		ve.Add("tools.max_file_size must be > 0")
	}
	for _, name := range t.Confirm.AlwaysApprove {
		for _, denied := range t.Confirm.AlwaysDeny {
			if name == denied {
				ve.Add("tools.confirm: %q is in both always_approve and always_deny", name)
			}
		}
	}

	names := make(map[string]bool)
	for i, s := range t.MCPServers {
		if s.Name == "" {
			ve.Add("tools.mcp_servers[%d].name must not be empty", i)
		} else if names[s.Name] {
			ve.Add("tools.mcp_servers[%d].name %q is duplicate", i, s.Name)
		}
		names[s.Name] = true
		if !validMCPTransports[s.Transport] {
			ve.Add("tools.mcp_servers[%d].transport %q is invalid (want: stdio, http)", i, s.Transport)
		}
		if s.Transport == "stdio" && s.Command == "" {
			ve.Add("tools.mcp_servers[%d].command is required for stdio transport", i)
		}
		if s.Transport == "http" {
			validateURL(fmt.Sprintf("tools.mcp_servers[%d].url", i), s.URL, ve)
		}
	}
}

func validateRetrieval(cfg *Config, ve *ValidationError) {
	r := cfg.Retrieval
	if !r.Enabled {
		return
	}
	if r.DBPath == "" {
		ve.Add("retrieval.db_path is required when retrieval is enabled")
	}
	for i, ext := range r.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ve.Add("retrieval.extensions[%d] %q must start with a dot", i, ext)
		}
	}
	validateSchedule("retrieval.reindex_schedule", r.ReindexSchedule, ve)
}

func validateGraph(cfg *Config, ve *ValidationError) {
	if cfg.Graph.URL == "" {
		return
	}
	validateURL("graph.url", cfg.Graph.URL, ve)
	if cfg.Graph.Timeout <= 0 {
		ve.Add("graph.timeout must be > 0 when graph.url is set")
	}
}

var (
	validLogLevels  = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"": true, "text": true, "json": true}
	validExporters  = map[string]bool{"": true, "noop": true, "stdout": true, "stderr": true}
)

func validateObservability(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout, stderr)", cfg.Tracer.Exporter)
	}
	if cfg.Tracer.SampleRatio < 0 || cfg.Tracer.SampleRatio > 1 {
		ve.Add("tracer.sample_ratio must be between 0 and 1")
	}
}

// validateSchedule accepts "", a 5-field cron expression, a descriptor such
// as "@hourly", or a positive Go duration.
func validateSchedule(field, schedule string, ve *ValidationError) {
	if schedule == "" {
		return
	}
	if _, err := cron.ParseStandard(schedule); err == nil {
		return
	}
	if d, err := time.ParseDuration(schedule); err == nil && d > 0 {
		return
	}
	ve.Add("%s %q is not a valid cron expression or duration", field, schedule)
}

func validateURL(field, raw string, ve *ValidationError) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("%s %q is not a valid absolute URL", field, raw)
	}
}
