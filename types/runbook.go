package types

// Runbook is the parsed test plan: the guests to drive and the suites of
// cases to run against them.
type Runbook struct {
	Targets []Target      `yaml:"targets" validate:"required,min=1,dive"`
	Suites  []SuiteConfig `yaml:"suites" validate:"required,min=1,dive"`
}

// SuiteConfig groups related cases under one identifier
type SuiteConfig struct {
	ID          string       `yaml:"id" validate:"required"`
	Description string       `yaml:"description"`
	Cases       []CaseConfig `yaml:"cases" validate:"required,min=1,dive"`
}

// CaseConfig is one planned run of a cataloged test.
// Targets binds the roles the test declares (e.g. sender, forwarder) to
// target names from the runbook's targets section.
type CaseConfig struct {
	Name     string            `yaml:"name" validate:"required"`
	Test     string            `yaml:"test" validate:"required"`
	Targets  map[string]string `yaml:"targets"`
	Params   Params            `yaml:"params"`
	Timeout  Duration          `yaml:"timeout"`
	Disabled bool              `yaml:"disabled"`
}

// Target returns the named target declaration, if present
func (r *Runbook) Target(name string) (Target, bool) {
	for _, t := range r.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// TargetMap returns the targets keyed by name
func (r *Runbook) TargetMap() map[string]Target {
	m := make(map[string]Target, len(r.Targets))
	for _, t := range r.Targets {
		m[t.Name] = t
	}
	return m
}
