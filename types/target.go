package types

import "fmt"

// Target describes a reachable guest and the credentials to log into it.
// Targets are resolved from the runbook once and are immutable afterwards.
type Target struct {
	Name     string `yaml:"name" validate:"required"`
	Address  string `yaml:"address" validate:"required"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	KeyFile  string `yaml:"keyFile"`
}

// Addr returns the dialable host:port address, defaulting to port 22
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", t.Address, port)
}
