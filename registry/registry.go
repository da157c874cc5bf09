// Package registry loads and validates the runbook: the YAML plan binding
// guest targets to the suites of cases that will run against them.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/virtinfra/guest-acceptor/types"
)

var validate = validator.New()

// Registry holds the loaded runbook
type Registry struct {
	config  Config
	runbook *types.Runbook
	mu      sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            *zap.SugaredLogger
	RunbookFile    string
	DefaultTimeout time.Duration
}

// NewRegistry loads the runbook file and validates it
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.RunbookFile == "" {
		return nil, types.NewConfigurationError(fmt.Errorf("runbook file is required"))
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadRunbook(cfg.RunbookFile); err != nil {
		return nil, fmt.Errorf("failed to load runbook: %w", err)
	}

	cfg.Log.Debugw("Runbook loaded",
		"targets", len(r.runbook.Targets),
		"suites", len(r.runbook.Suites))

	return r, nil
}

func (r *Registry) loadRunbook(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	runbook, err := loadFile(path)
	if err != nil {
		return err
	}

	r.applyDefaults(runbook)

	if err := validate.Struct(runbook); err != nil {
		return types.NewConfigurationError(fmt.Errorf("invalid runbook: %w", err))
	}
	if err := validateSemantics(runbook); err != nil {
		return types.NewConfigurationError(err)
	}

	r.runbook = runbook
	return nil
}

func (r *Registry) applyDefaults(runbook *types.Runbook) {
	for i := range runbook.Suites {
		for j := range runbook.Suites[i].Cases {
			c := &runbook.Suites[i].Cases[j]
			if c.Timeout == 0 {
				c.Timeout = types.Duration(r.config.DefaultTimeout)
			}
			if c.Params == nil {
				c.Params = types.Params{}
			}
		}
	}
}

// validateSemantics enforces what struct tags cannot express: name
// uniqueness, credential presence, and role bindings pointing at declared
// targets.
func validateSemantics(runbook *types.Runbook) error {
	targets := make(map[string]bool, len(runbook.Targets))
	for _, t := range runbook.Targets {
		if targets[t.Name] {
			return fmt.Errorf("duplicate target %q", t.Name)
		}
		targets[t.Name] = true
		if t.Password == "" && t.KeyFile == "" {
			return fmt.Errorf("target %q has neither password nor keyFile", t.Name)
		}
	}

	suites := make(map[string]bool, len(runbook.Suites))
	for _, s := range runbook.Suites {
		if suites[s.ID] {
			return fmt.Errorf("duplicate suite %q", s.ID)
		}
		suites[s.ID] = true

		cases := make(map[string]bool, len(s.Cases))
		for _, c := range s.Cases {
			if cases[c.Name] {
				return fmt.Errorf("duplicate case %q in suite %q", c.Name, s.ID)
			}
			cases[c.Name] = true

			for role, target := range c.Targets {
				if !targets[target] {
					return fmt.Errorf("case %q binds role %q to undeclared target %q", c.Name, role, target)
				}
			}
		}
	}
	return nil
}

// Runbook returns the loaded runbook
func (r *Registry) Runbook() *types.Runbook {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runbook
}

// Targets returns the declared targets keyed by name
func (r *Registry) Targets() map[string]types.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runbook.TargetMap()
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

func loadFile(path string) (*types.Runbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading runbook file: %w", err)
	}

	var runbook types.Runbook
	if err := yaml.Unmarshal(data, &runbook); err != nil {
		return nil, types.NewConfigurationError(fmt.Errorf("parsing runbook file: %w", err))
	}

	return &runbook, nil
}
