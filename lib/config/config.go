/*
Copyright 2024 PyNinja Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads the ninjad environment from a file or the process
// environment. Recognized keys are case-insensitive and may be supplied via
// .env, .json, .yaml/.yml, or a plain key=value text file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"
)

// RateLimit is one fixed-window limiter definition.
type RateLimit struct {
	MaxRequests int `json:"max_requests" yaml:"max_requests"`
	Seconds     int `json:"seconds" yaml:"seconds"`
}

// Config is the full set of recognized ninjad settings. Field names mirror
// the lower_snake keys from the spec so that JSON/YAML files round-trip
// without extra tag plumbing.
type Config struct {
	APIKey              string      `json:"apikey" yaml:"apikey"`
	NinjaHost           string      `json:"ninja_host" yaml:"ninja_host"`
	NinjaPort           int         `json:"ninja_port" yaml:"ninja_port"`
	APISecret           string      `json:"api_secret" yaml:"api_secret"`
	RemoteExecution     bool        `json:"remote_execution" yaml:"remote_execution"`
	AuthenticatorToken  string      `json:"authenticator_token" yaml:"authenticator_token"`
	MonitorUsername     string      `json:"monitor_username" yaml:"monitor_username"`
	MonitorPassword     string      `json:"monitor_password" yaml:"monitor_password"`
	MonitorSession      int         `json:"monitor_session" yaml:"monitor_session"`
	MFATimeout          int         `json:"mfa_timeout" yaml:"mfa_timeout"`
	MFAResendDelay      int         `json:"mfa_resend_delay" yaml:"mfa_resend_delay"`
	Database            string      `json:"database" yaml:"database"`
	RateLimit           []RateLimit `json:"rate_limit" yaml:"rate_limit"`
	Processes           []string    `json:"processes" yaml:"processes"`
	Services            []string    `json:"services" yaml:"services"`
	ServiceLib          string      `json:"service_lib" yaml:"service_lib"`
	DiskLib             string      `json:"disk_lib" yaml:"disk_lib"`
	GPULib              string      `json:"gpu_lib" yaml:"gpu_lib"`
	ProcessorLib        string      `json:"processor_lib" yaml:"processor_lib"`
	HostPassword        string      `json:"host_password" yaml:"host_password"`
	CertbotPath         string      `json:"certbot_path" yaml:"certbot_path"`
	GmailUser           string      `json:"gmail_user" yaml:"gmail_user"`
	GmailPass           string      `json:"gmail_pass" yaml:"gmail_pass"`
	GmailRecipient      string      `json:"gmail_recipient" yaml:"gmail_recipient"`
	PushURL             string      `json:"push_url" yaml:"push_url"`
	PushTopic           string      `json:"push_topic" yaml:"push_topic"`
	PushCredentials     string      `json:"push_credentials" yaml:"push_credentials"`
}

// MFATimeoutDuration and MFAResendDelayDuration convert the configured
// second counts to time.Duration, for callers that wire a Controller.
func (c *Config) MFATimeoutDuration() time.Duration {
	return time.Duration(c.MFATimeout) * time.Second
}

func (c *Config) MFAResendDelayDuration() time.Duration {
	return time.Duration(c.MFAResendDelay) * time.Second
}

// MonitorSessionDuration converts monitor_session from seconds.
func (c *Config) MonitorSessionDuration() time.Duration {
	return time.Duration(c.MonitorSession) * time.Second
}

// defaults applies the values the spec calls out as having platform/runtime
// defaults rather than requiring every key to be present.
func (c *Config) defaults() {
	if c.NinjaHost == "" {
		c.NinjaHost = "0.0.0.0"
	}
	if c.NinjaPort == 0 {
		c.NinjaPort = 8000
	}
	if c.MonitorSession == 0 {
		c.MonitorSession = 3600
	}
	if c.MFATimeout == 0 {
		c.MFATimeout = 300
	}
	if c.MFAResendDelay == 0 {
		c.MFAResendDelay = 180
	}
	if c.Database == "" {
		c.Database = "ninja.db"
	}
}

// Validate enforces the cross-field invariants the spec names explicitly.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return trace.BadParameter("apikey is required")
	}
	if !strings.HasSuffix(c.Database, ".db") {
		return trace.BadParameter("database filename %q must end in .db", c.Database)
	}
	if c.APISecret != "" {
		if err := validateSecretComplexity(c.APISecret); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

func validateSecretComplexity(secret string) error {
	if len(secret) < 32 {
		return trace.BadParameter("api_secret must be at least 32 characters")
	}
	var hasDigit, hasUpper, hasLower, hasSymbol bool
	for _, r := range secret {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		default:
			hasSymbol = true
		}
	}
	if !(hasDigit && hasUpper && hasLower && hasSymbol) {
		return trace.BadParameter("api_secret must contain a digit, an uppercase letter, a lowercase letter, and a symbol")
	}
	return nil
}

// Load reads a config file whose format is inferred from its extension. An
// empty path falls back to reading recognized keys from the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		loadFromEnviron(cfg)
		cfg.defaults()
		return cfg, trace.Wrap(cfg.Validate())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, trace.Wrap(err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, trace.Wrap(err)
		}
	case ".env", ".txt", "":
		if err := loadFromText(data, cfg); err != nil {
			return nil, trace.Wrap(err)
		}
	default:
		return nil, trace.BadParameter("unsupported config extension %q", ext)
	}

	loadFromEnviron(cfg)
	cfg.defaults()
	return cfg, trace.Wrap(cfg.Validate())
}

// loadFromText parses simple KEY=VALUE lines, matching .env/.txt files.
func loadFromText(data []byte, cfg *Config) error {
	lines := strings.Split(string(data), "\n")
	kv := map[string]string{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		kv[strings.ToLower(strings.TrimSpace(parts[0]))] = strings.Trim(strings.TrimSpace(parts[1]), `"'`)
	}
	raw, err := json.Marshal(kv)
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(applyLowerKeys(raw, cfg))
}

// applyLowerKeys re-marshals a generic string map onto cfg via JSON tags,
// which are already declared lower_snake, so case-insensitive text/.env
// sources map onto the same struct used for JSON/YAML.
func applyLowerKeys(raw []byte, cfg *Config) error {
	var generic map[string]string
	if err := json.Unmarshal(raw, &generic); err != nil {
		return trace.Wrap(err)
	}
	merged := map[string]interface{}{}
	for k, v := range generic {
		merged[k] = coerce(v)
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(json.Unmarshal(out, cfg))
}

func coerce(v string) interface{} {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return v
}

// loadFromEnviron overlays the keys listed below from the process
// environment, taking precedence over file values. Each key is looked up
// only under its upper-case name (APIKEY, NINJA_PORT, ...); the other
// Config keys are not read from the environment.
func loadFromEnviron(cfg *Config) {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(strings.ToUpper(key)); ok {
			*dst = v
		}
	}
	set("apikey", &cfg.APIKey)
	set("ninja_host", &cfg.NinjaHost)
	set("api_secret", &cfg.APISecret)
	set("authenticator_token", &cfg.AuthenticatorToken)
	set("monitor_username", &cfg.MonitorUsername)
	set("monitor_password", &cfg.MonitorPassword)
	set("database", &cfg.Database)
	set("host_password", &cfg.HostPassword)
	set("certbot_path", &cfg.CertbotPath)

	if v, ok := os.LookupEnv("NINJA_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NinjaPort = n
		}
	}
	if v, ok := os.LookupEnv("REMOTE_EXECUTION"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RemoteExecution = b
		}
	}
}
