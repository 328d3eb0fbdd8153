package mcp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestServer describes one capability server in the fleet manifest.
type ManifestServer struct {
	Name            string            `yaml:"name"`
	Transport       string            `yaml:"transport"` // stdio (default), http
	Command         string            `yaml:"command,omitempty"`
	Args            []string          `yaml:"args,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
	URL             string            `yaml:"url,omitempty"`
	ProtocolVersion string            `yaml:"protocol_version,omitempty"`
}

// Manifest is the servers.yaml fleet definition. The order of entries is
// the fleet's scan order.
type Manifest struct {
	Servers []ManifestServer `yaml:"servers"`
}

// LoadManifest reads and validates a fleet manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	seen := make(map[string]bool, len(m.Servers))
	for i := range m.Servers {
		s := &m.Servers[i]
		if s.Name == "" {
			return nil, fmt.Errorf("manifest server %d: name is required", i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("manifest server %q: duplicate name", s.Name)
		}
		seen[s.Name] = true

		if s.Transport == "" {
			s.Transport = "stdio"
		}
		switch s.Transport {
		case "stdio":
			if s.Command == "" {
				return nil, fmt.Errorf("manifest server %q: command is required for stdio transport", s.Name)
			}
		case "http", "streamable-http":
			if s.URL == "" {
				return nil, fmt.Errorf("manifest server %q: url is required for http transport", s.Name)
			}
		default:
			return nil, fmt.Errorf("manifest server %q: unsupported transport %q", s.Name, s.Transport)
		}
	}
	return &m, nil
}
