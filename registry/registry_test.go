package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtinfra/guest-acceptor/types"
)

const validRunbook = `
targets:
  - name: client
    address: 192.0.2.10
    user: root
    password: lab-secret
  - name: server
    address: 192.0.2.11
    port: 2222
    user: root
    keyFile: /keys/server_ed25519
suites:
  - id: network
    description: "Reachability over the secondary NIC"
    cases:
      - name: ping-secondary-nic
        test: network-ping
        targets:
          client: client
          server: server
        params:
          nicName: eth1
          serverPingIP: 10.0.1.11
          expectReachable: "true"
        timeout: 5m
      - name: ping-isolated
        test: network-ping
        targets:
          client: client
          server: server
        params:
          nicName: eth1
          serverPingIP: 10.0.2.11
          expectReachable: "false"
        disabled: true
`

func writeRunbook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryLoadsValidRunbook(t *testing.T) {
	r, err := NewRegistry(Config{
		RunbookFile:    writeRunbook(t, validRunbook),
		DefaultTimeout: 10 * time.Minute,
	})
	require.NoError(t, err)

	rb := r.Runbook()
	require.Len(t, rb.Targets, 2)
	require.Len(t, rb.Suites, 1)

	server, ok := rb.Target("server")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.11:2222", server.Addr())

	client := r.Targets()["client"]
	assert.Equal(t, "192.0.2.10:22", client.Addr())

	cases := rb.Suites[0].Cases
	require.Len(t, cases, 2)
	assert.Equal(t, 5*time.Minute, cases[0].Timeout.Std())
	assert.Equal(t, "eth1", cases[0].Params["nicName"])
	assert.True(t, cases[1].Disabled)

	// The default timeout fills in where the runbook is silent.
	assert.Equal(t, 10*time.Minute, cases[1].Timeout.Std())
}

func TestRegistryRejectsBadRunbooks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "not yaml",
			content: "targets: [unclosed",
			wantErr: "parsing runbook",
		},
		{
			name: "no targets",
			content: `
suites:
  - id: network
    cases:
      - name: a
        test: network-ping
`,
			wantErr: "invalid runbook",
		},
		{
			name: "no suites",
			content: `
targets:
  - name: client
    address: 192.0.2.10
    user: root
    password: x
`,
			wantErr: "invalid runbook",
		},
		{
			name: "target without credentials",
			content: `
targets:
  - name: client
    address: 192.0.2.10
    user: root
suites:
  - id: network
    cases:
      - name: a
        test: network-ping
`,
			wantErr: "neither password nor keyFile",
		},
		{
			name: "duplicate target",
			content: `
targets:
  - name: client
    address: 192.0.2.10
    user: root
    password: x
  - name: client
    address: 192.0.2.11
    user: root
    password: x
suites:
  - id: network
    cases:
      - name: a
        test: network-ping
`,
			wantErr: `duplicate target "client"`,
		},
		{
			name: "binding to undeclared target",
			content: `
targets:
  - name: client
    address: 192.0.2.10
    user: root
    password: x
suites:
  - id: network
    cases:
      - name: a
        test: network-ping
        targets:
          server: ghost
`,
			wantErr: `undeclared target "ghost"`,
		},
		{
			name: "duplicate case in suite",
			content: `
targets:
  - name: client
    address: 192.0.2.10
    user: root
    password: x
suites:
  - id: network
    cases:
      - name: a
        test: network-ping
      - name: a
        test: clocksource
`,
			wantErr: `duplicate case "a"`,
		},
		{
			name: "bad timeout",
			content: `
targets:
  - name: client
    address: 192.0.2.10
    user: root
    password: x
suites:
  - id: network
    cases:
      - name: a
        test: network-ping
        timeout: fast
`,
			wantErr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(Config{RunbookFile: writeRunbook(t, tt.content)})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, types.IsConfigurationError(err),
				"runbook problems should classify as configuration errors")
		})
	}
}

func TestRegistryRequiresRunbookFile(t *testing.T) {
	_, err := NewRegistry(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runbook file is required")
	assert.True(t, types.IsConfigurationError(err))
}

func TestRegistryMissingFile(t *testing.T) {
	_, err := NewRegistry(Config{RunbookFile: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading runbook file")
}
