package gateway

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Config is the gateway.http module configuration.
type Config struct {
	Bind string     `yaml:"bind"`
	Auth AuthConfig `yaml:"auth"`

	// ChatPath is the route of the chat WebSocket.
	ChatPath string `yaml:"chat_path"`

	// Only the header read is bounded: chat connections stay open for the
	// whole conversation.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ChatPath == "" {
		c.ChatPath = "/ws/chat"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

func (c *Config) validate() error {
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		return fmt.Errorf("gateway: bind %q: %w", c.Bind, err)
	}
	if !strings.HasPrefix(c.ChatPath, "/") {
		return fmt.Errorf("gateway: chat_path %q must be absolute", c.ChatPath)
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		return fmt.Errorf("gateway: auth needs both basic_user and basic_pass")
	}
	return nil
}

// AuthConfig protects the admin routes. With neither a bearer token nor
// a basic pair, the admin routes are not mounted.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured reports whether any admin credential is set.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}

// secrets maps credential names to the configured secret values.
func (a AuthConfig) secrets() map[string]string {
	out := make(map[string]string, 2)
	if a.BearerToken != "" {
		out["gateway.auth.bearer_token"] = a.BearerToken
	}
	if a.BasicPass != "" {
		out["gateway.auth.basic_pass"] = a.BasicPass
	}
	return out
}
