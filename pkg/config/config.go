// Package config loads gateway configuration from defaults, an optional
// YAML file and MCPGATE_-prefixed environment variables, in that order.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Gateway   GatewayConfig   `koanf:"gateway"`
	MCP       MCPConfig       `koanf:"mcp"`
	Research  ResearchConfig  `koanf:"research"`
	Audit     AuditConfig     `koanf:"audit"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type GatewayConfig struct {
	Addr string `koanf:"addr"`
}

type MCPConfig struct {
	// Manifest is the path to the servers.yaml fleet manifest.
	Manifest  string `koanf:"manifest"`
	TimeoutMS int    `koanf:"timeout_ms"`
	Retries   int    `koanf:"retries"`
	BackoffMS int    `koanf:"backoff_ms"`
}

type ResearchConfig struct {
	BaseURL   string `koanf:"base_url"`
	APIKey    string `koanf:"api_key"`
	Model     string `koanf:"model"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

type AuditConfig struct {
	Enabled bool   `koanf:"enabled"`
	DBPath  string `koanf:"db_path"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Load reads configuration from the given file path (optional) and the
// environment. Environment keys map MCPGATE_RESEARCH_MODEL -> research.model.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("gateway.addr", ":8321")
	k.Set("mcp.manifest", "servers.yaml")
	k.Set("mcp.timeout_ms", 10000)
	k.Set("mcp.retries", 2)
	k.Set("mcp.backoff_ms", 200)
	k.Set("research.base_url", "https://api.perplexity.ai")
	k.Set("research.model", "sonar")
	k.Set("research.timeout_ms", 60000)
	k.Set("audit.enabled", false)
	k.Set("audit.db_path", "mcpgate-audit.db")
	k.Set("telemetry.exporter", "stdout")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("MCPGATE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "MCPGATE_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
