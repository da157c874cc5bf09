// Package cases holds the built-in catalog of guest acceptance tests:
// network reachability, clocksource selection, and XDP forwarding
// throughput. Each test is a Definition whose builder assembles setup
// steps and checks from the runbook-provided params and role bindings.
package cases

import (
	"github.com/virtinfra/guest-acceptor/runner"
)

// Catalog returns the built-in test definitions keyed by test id
func Catalog() runner.Catalog {
	defs := []runner.Definition{
		networkPingDefinition(),
		clocksourceDefinition(),
		xdpForwardingDefinition(),
	}
	catalog := make(runner.Catalog, len(defs))
	for _, def := range defs {
		catalog[def.Test] = def
	}
	return catalog
}
