package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoServers is returned by fleet queries when no capability servers
	// are connected. Callers use it to distinguish configuration absence
	// from transient upstream failures.
	ErrNoServers = errors.New("no mcp servers connected")

	// ErrServerNotFound is returned when a query names an unknown server.
	ErrServerNotFound = errors.New("mcp server not found")

	// ErrDuplicateServer is returned when a server name is registered twice.
	ErrDuplicateServer = errors.New("mcp server already registered")

	// ErrPromptConfigMissing marks GetPrompt failures where the remote
	// reports its prompt configuration as missing. The dispatcher treats
	// this as a signal to fall back to the declared prompt schema.
	ErrPromptConfigMissing = errors.New("prompt configuration missing on server")
)

func newPromptConfigMissing(name string, cause error) error {
	return fmt.Errorf("get prompt %q: %w: %w", name, ErrPromptConfigMissing, cause)
}

func newPromptListConfigMissing(cause error) error {
	return fmt.Errorf("list prompts: %w: %w", ErrPromptConfigMissing, cause)
}
