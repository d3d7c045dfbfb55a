// Package config loads and validates the discord-bridge configuration
// surface defined in SPEC_FULL.md §6.3: Discord credentials, HTTP forwarding
// tunables, the route table, and the ambient admin/log toggles.
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var sampleTemplate string

// Config is the root configuration document.
type Config struct {
	Discord DiscordConfig `toml:"discord"`
	HTTP    HTTPConfig    `toml:"http"`
	Admin   AdminConfig   `toml:"admin"`
	Log     LogConfig     `toml:"log"`
	Routes  []Route       `toml:"routes"`
}

// DiscordConfig carries the Gateway identify parameters.
type DiscordConfig struct {
	Token   string `toml:"token"`
	Intents int    `toml:"intents"`
}

// HTTPConfig tunes the forwarder's per-attempt timeout and retry budget.
type HTTPConfig struct {
	Timeout       int `toml:"timeout"`
	RetryAttempts int `toml:"retry_attempts"`
	RetryDelay    int `toml:"retry_delay"`
}

// AdminConfig controls the optional read-only admin HTTP surface (§6.5).
// ListenAddr empty disables it.
type AdminConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// LogConfig controls the ambient logging verbosity.
type LogConfig struct {
	Debug bool `toml:"debug"`
}

// Route maps a Discord dispatch event name to a set of HTTP sinks.
//
// EnabledRaw is a pointer so the TOML decoder can distinguish "enabled
// omitted" (defaults to true, per SPEC_FULL.md §6.3) from an explicit
// "enabled = false". Use IsEnabled to read the effective value.
type Route struct {
	EventName  string   `toml:"event_name"`
	Endpoints  []string `toml:"endpoints"`
	EnabledRaw *bool    `toml:"enabled"`
}

// IsEnabled reports whether the route is active; an omitted `enabled` key
// defaults to true.
func (r Route) IsEnabled() bool {
	return r.EnabledRaw == nil || *r.EnabledRaw
}

// Default returns the configuration defaults from SPEC_FULL.md §6.3. It is
// not a valid, startable configuration on its own: Discord.Token is empty
// and Validate will reject it until the operator supplies one.
func Default() *Config {
	return &Config{
		Discord: DiscordConfig{Intents: 513},
		HTTP: HTTPConfig{
			Timeout:       30,
			RetryAttempts: 3,
			RetryDelay:    1,
		},
		Routes: make([]Route, 0),
	}
}

// Load reads and validates the TOML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveTemplateConfig writes the embedded sample configuration to path,
// mirroring the `discord-bridge init` command.
func SaveTemplateConfig(path string) error {
	return os.WriteFile(path, []byte(sampleTemplate), 0644)
}

// Validate enforces the invariants from SPEC_FULL.md §6.3: a non-empty,
// sufficiently long bot token, positive HTTP tunables, and well-formed
// absolute HTTP(S) endpoint URLs on every route. It also fills in
// defaults for zero-valued HTTP tunables, mirroring the teacher's
// load-then-default-then-validate pattern.
func (c *Config) Validate() error {
	if len(c.Discord.Token) < 10 {
		return fmt.Errorf("discord.token must be provided and at least 10 characters")
	}
	if c.Discord.Intents == 0 {
		c.Discord.Intents = 513
	}

	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must be positive")
	}
	if c.HTTP.RetryAttempts == 0 {
		c.HTTP.RetryAttempts = 3
	}
	if c.HTTP.RetryAttempts < 1 {
		return fmt.Errorf("http.retry_attempts must be >= 1")
	}
	if c.HTTP.RetryDelay == 0 {
		c.HTTP.RetryDelay = 1
	}
	if c.HTTP.RetryDelay < 0 {
		return fmt.Errorf("http.retry_delay must be positive")
	}

	for i := range c.Routes {
		route := &c.Routes[i]
		if route.EventName == "" {
			return fmt.Errorf("routes[%d]: event_name is required", i)
		}
		if len(route.Endpoints) == 0 {
			return fmt.Errorf("routes[%d] (%s): at least one endpoint is required", i, route.EventName)
		}
		for _, endpoint := range route.Endpoints {
			u, err := url.Parse(endpoint)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return fmt.Errorf("routes[%d] (%s): invalid endpoint URL %q", i, route.EventName, endpoint)
			}
		}
	}

	return nil
}

// RoutesForEvent returns the enabled routes matching eventName, in the
// order they were defined. This is the sole route-lookup implementation;
// the Router package calls it directly (SPEC_FULL.md §8 property 1).
func (c *Config) RoutesForEvent(eventName string) []Route {
	var matched []Route
	for _, route := range c.Routes {
		if route.IsEnabled() && route.EventName == eventName {
			matched = append(matched, route)
		}
	}
	return matched
}
