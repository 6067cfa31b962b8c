package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/iambrandonn/pairagent/internal/fsutil"
	"github.com/iambrandonn/pairagent/internal/protocol"
	"github.com/tidwall/jsonc"
)

// CurrentVersion is written by GenerateDefault.
const CurrentVersion = "1.0"

// DefaultAgentPath is where the agent object is exported unless configured.
const DefaultAgentPath = "/org/bluez/agent/pairagent"

// Surface kinds.
const (
	SurfaceTUI  = "tui"
	SurfaceExec = "exec"
)

// Config represents the pairagent configuration file. The file is JSON with
// comments allowed.
type Config struct {
	Version  string  `json:"version"`
	Agent    Agent   `json:"agent"`
	Policy   Policy  `json:"policy"`
	Surface  Surface `json:"surface"`
	LockPath string  `json:"lock_path,omitempty"`
}

// Agent configures the exported agent object.
type Agent struct {
	Path string `json:"path"`
}

// Policy selects how each question-style request is answered. Passkey and
// PIN code requests are always declined and are not configurable.
type Policy struct {
	Authorization protocol.Policy `json:"authorization"`
	Confirmation  protocol.Policy `json:"confirmation"`
}

// Surface configures the operator-facing confirmation surface.
type Surface struct {
	Kind string `json:"kind"`
	// Command is the helper argv for the exec surface. Empty means
	// "<own binary> prompt".
	Command           []string `json:"command,omitempty"`
	DecisionTimeoutMs int      `json:"decision_timeout_ms"`
}

// DecisionTimeout returns the operator decision timeout; zero means wait
// forever.
func (s Surface) DecisionTimeout() time.Duration {
	return time.Duration(s.DecisionTimeoutMs) * time.Millisecond
}

// GenerateDefault creates a Config with default values.
func GenerateDefault() *Config {
	return &Config{
		Version: CurrentVersion,
		Agent: Agent{
			Path: DefaultAgentPath,
		},
		Policy: Policy{
			Authorization: protocol.PolicyAccept,
			Confirmation:  protocol.PolicyAsk,
		},
		Surface: Surface{
			Kind:              SurfaceTUI,
			DecisionTimeoutMs: 60000,
		},
	}
}

// Validate checks the configuration and returns user-friendly errors.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": %q", CurrentVersion)
	}

	if !dbus.ObjectPath(c.Agent.Path).IsValid() || c.Agent.Path == "/" {
		return fmt.Errorf("configuration error: invalid 'agent.path' value %q\n\nHint: Use a D-Bus object path such as:\n  \"agent\": {\"path\": %q}", c.Agent.Path, DefaultAgentPath)
	}

	for _, field := range []struct {
		name   string
		policy protocol.Policy
	}{
		{"authorization", c.Policy.Authorization},
		{"confirmation", c.Policy.Confirmation},
	} {
		if !field.policy.Valid() {
			return fmt.Errorf("configuration error: invalid 'policy.%s' value %q\n\nHint: Use one of \"accept\", \"reject\" or \"ask\"", field.name, field.policy)
		}
	}

	switch c.Surface.Kind {
	case SurfaceTUI, SurfaceExec:
	default:
		return fmt.Errorf("configuration error: invalid 'surface.kind' value %q\n\nHint: Use \"tui\" or \"exec\"", c.Surface.Kind)
	}

	if c.Surface.DecisionTimeoutMs < 0 {
		return fmt.Errorf("configuration error: 'surface.decision_timeout_ms' must not be negative (got %d)\n\nHint: Use 0 to wait for the operator indefinitely", c.Surface.DecisionTimeoutMs)
	}

	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/pairagent/config.jsonc, falling back
// to ~/.config.
func DefaultPath(getenv func(string) string) string {
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(getenv("HOME"), ".config")
	}
	return filepath.Join(base, "pairagent", "config.jsonc")
}

// DefaultLockPath returns the single-instance lock location.
func DefaultLockPath(getenv func(string) string) string {
	if dir := getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "pairagent.lock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("pairagent-%d.lock", os.Getuid()))
}

// LoadFromFile loads a configuration file. Fields missing from the file keep
// their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := GenerateDefault()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Load reads path. When path is empty the default location is used, and a
// missing default file yields the built-in defaults.
func Load(path string, getenv func(string) string) (*Config, string, error) {
	if path != "" {
		cfg, err := LoadFromFile(path)
		return cfg, path, err
	}

	path = DefaultPath(getenv)
	cfg, err := LoadFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return GenerateDefault(), "", nil
	}
	return cfg, path, err
}

// SaveToFile atomically writes the configuration with 0600 permissions,
// creating the parent directory when needed.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := fsutil.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}
