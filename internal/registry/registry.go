// Package registry loads the monitored targets and the engine thresholds from
// the targets file. It holds no state: callers merge what Load returns into
// their own view, so a reload can be rejected without side effects.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/pingwatch/internal/domain"
)

const (
	DefaultPollInterval     = 10 * time.Second
	DefaultFailThreshold    = 3
	DefaultRecoverThreshold = 2
	DefaultCooldown         = 600 * time.Second
)

type fileTarget struct {
	Name            string `yaml:"name"`
	Host            string `yaml:"host"`
	CooldownSeconds *int   `yaml:"cooldown_seconds"`
}

type fileDoc struct {
	PollIntervalSeconds *int         `yaml:"poll_interval_seconds"`
	FailThreshold       *int         `yaml:"fail_threshold"`
	RecoverThreshold    *int         `yaml:"recover_threshold"`
	CooldownSeconds     *int         `yaml:"cooldown_seconds"`
	Targets             []fileTarget `yaml:"targets"`
	Cameras             []fileTarget `yaml:"cameras"` // legacy key
}

type Registry struct {
	path string
}

func New(path string) *Registry {
	return &Registry{path: path}
}

func (r *Registry) Path() string { return r.path }

// Load reads and validates the targets file. Every failure is a *domain.ConfigError.
func (r *Registry) Load() (domain.Settings, []domain.Target, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return domain.Settings{}, nil, &domain.ConfigError{Source: r.path, Err: err}
	}
	s, ts, err := Parse(b)
	if err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			ce.Source = r.path
		}
		return domain.Settings{}, nil, err
	}
	return s, ts, nil
}

// Reload is Load under the name the front-end uses; the registry itself has
// nothing to refresh.
func (r *Registry) Reload() (domain.Settings, []domain.Target, error) {
	return r.Load()
}

// Parse decodes a targets document and applies defaults.
func Parse(b []byte) (domain.Settings, []domain.Target, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return domain.Settings{}, nil, &domain.ConfigError{Err: fmt.Errorf("parse yaml: %w", err)}
	}

	var errs error
	s := domain.Settings{
		PollInterval:     DefaultPollInterval,
		FailThreshold:    DefaultFailThreshold,
		RecoverThreshold: DefaultRecoverThreshold,
		DefaultCooldown:  DefaultCooldown,
	}
	if v := doc.PollIntervalSeconds; v != nil {
		if *v <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("poll_interval_seconds must be positive, got %d", *v))
		}
		s.PollInterval = time.Duration(*v) * time.Second
	}
	if v := doc.FailThreshold; v != nil {
		if *v <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("fail_threshold must be positive, got %d", *v))
		}
		s.FailThreshold = *v
	}
	if v := doc.RecoverThreshold; v != nil {
		if *v <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("recover_threshold must be positive, got %d", *v))
		}
		s.RecoverThreshold = *v
	}
	if v := doc.CooldownSeconds; v != nil {
		if *v < 0 {
			errs = multierr.Append(errs, fmt.Errorf("cooldown_seconds must not be negative, got %d", *v))
		}
		s.DefaultCooldown = time.Duration(*v) * time.Second
	}

	raw := doc.Targets
	if len(raw) == 0 {
		raw = doc.Cameras
	}
	seen := make(map[string]bool, len(raw))
	targets := make([]domain.Target, 0, len(raw))
	for i, ft := range raw {
		name := strings.TrimSpace(ft.Name)
		host := strings.TrimSpace(ft.Host)
		if name == "" {
			errs = multierr.Append(errs, fmt.Errorf("targets[%d]: name is required", i))
			continue
		}
		if seen[name] {
			errs = multierr.Append(errs, fmt.Errorf("targets[%d]: duplicate name %q", i, name))
			continue
		}
		seen[name] = true
		if err := validateHost(host); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("targets[%d] %q: %w", i, name, err))
			continue
		}
		t := domain.Target{Name: name, Host: host}
		if ft.CooldownSeconds != nil {
			if *ft.CooldownSeconds < 0 {
				errs = multierr.Append(errs, fmt.Errorf("targets[%d] %q: cooldown_seconds must not be negative", i, name))
				continue
			}
			t = t.WithCooldown(time.Duration(*ft.CooldownSeconds) * time.Second)
		}
		targets = append(targets, t)
	}

	if errs != nil {
		return domain.Settings{}, nil, &domain.ConfigError{Err: errs}
	}
	return s, targets, nil
}

func validateHost(host string) error {
	switch {
	case host == "":
		return errors.New("host is required")
	case strings.Contains(host, "://"):
		return fmt.Errorf("host %q must be a bare name or address, not a URL", host)
	case strings.ContainsAny(host, " \t/"):
		return fmt.Errorf("host %q contains invalid characters", host)
	case strings.HasPrefix(host, "-"):
		return fmt.Errorf("host %q must not start with '-'", host)
	}
	return nil
}
