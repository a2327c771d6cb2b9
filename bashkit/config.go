package bashkit

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/bashkit-sh/bashkit/limits"
	"github.com/bashkit-sh/bashkit/shell"
)

// BuilderConfig is the YAML-loadable shape of a [Builder], letting a host
// check a limits profile and environment into its own repo instead of
// hand-building one in code, per SPEC_FULL.md §2's configuration stack.
// Handles with no YAML representation (FS, HTTPClient, GitHandle,
// PythonHandle, Logger) are not part of this struct; a caller applies them
// with the usual BuilderOptions after LoadConfig returns.
type BuilderConfig struct {
	// Profile selects a named baseline ("conservative", the default, or
	// "relaxed") before Limits overrides are applied on top of it.
	Profile string                 `yaml:"profile"`
	Limits  limits.ExecutionLimits `yaml:"limits"`
	Env     map[string]string      `yaml:"env"`
	Identity *struct {
		User string `yaml:"user"`
		Host string `yaml:"host"`
		OS   string `yaml:"os"`
	} `yaml:"identity"`
}

// LoadConfig parses a YAML document produced by [BuilderConfig] into a
// ready-to-[Build] [Builder]. Further BuilderOptions (WithFS, WithHTTPClient,
// WithGit, WithPython, WithLogger) can still be appended before Build.
func LoadConfig(data []byte) (*Builder, error) {
	// First pass just to learn the profile, so the second pass can seed
	// cfg.Limits with that profile's defaults before any "limits:" keys in
	// the document overwrite individual fields on top of them.
	var probe struct {
		Profile string `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("bashkit: parsing config: %w", err)
	}

	cfg := BuilderConfig{Profile: probe.Profile}
	switch cfg.Profile {
	case "", "conservative":
		cfg.Limits = limits.Conservative()
	case "relaxed":
		cfg.Limits = limits.Relaxed()
	default:
		return nil, fmt.Errorf("bashkit: unknown limits profile %q", cfg.Profile)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("bashkit: parsing config: %w", err)
	}

	opts := []BuilderOption{WithLimits(cfg.Limits)}
	if cfg.Env != nil {
		// Env values go through shell expansion against the host process
		// environment, so a checked-in profile can say
		// `API_URL: "${STAGING_URL:-https://api.example.com}"` instead of
		// hardcoding per-deployment values.
		env := make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			expanded, err := shell.Expand(v, nil)
			if err != nil {
				return nil, fmt.Errorf("bashkit: expanding env %s: %w", k, err)
			}
			env[k] = expanded
		}
		opts = append(opts, WithEnv(env))
	}
	if cfg.Identity != nil {
		opts = append(opts, WithIdentity(cfg.Identity.User, cfg.Identity.Host, cfg.Identity.OS))
	}
	return NewBuilder(opts...), nil
}
