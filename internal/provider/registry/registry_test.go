package registry_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhulsman/parking-monitor/internal/provider/registry"
)

func TestGet(t *testing.T) {
	reg, err := registry.Get()
	require.NoError(t, err)
	assert.Contains(t, reg.Providers, "thehague")
	assert.Contains(t, reg.Providers, "dvsportal")
	assert.NotEmpty(t, reg.Municipalities)

	m, ok := reg.Municipality("thehague")
	require.True(t, ok)
	assert.Equal(t, "Den Haag", m.Name)

	m, ok = reg.Municipality("parkeren.hilversum.nl")
	require.True(t, ok)
	assert.Equal(t, "dvsportal", m.Provider)

	_, ok = reg.Municipality("unknown")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "valid",
			body: `
providers:
  thehague:
    label: Den Haag
    unique_id_strategy: account_id
municipalities:
  - name: Den Haag
    provider: thehague
`,
		},
		{
			name:    "no providers",
			body:    "municipalities: []\n",
			wantErr: "no providers",
		},
		{
			name: "bad strategy",
			body: `
providers:
  thehague:
    label: Den Haag
    unique_id_strategy: serial
`,
			wantErr: "unknown unique_id_strategy",
		},
		{
			name: "unknown provider reference",
			body: `
providers:
  thehague:
    label: Den Haag
    unique_id_strategy: account_id
municipalities:
  - name: Hilversum
    provider: dvsportal
`,
			wantErr: "unknown provider",
		},
		{
			name:    "not yaml",
			body:    "providers: [",
			wantErr: "invalid registry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Load(strings.NewReader(tt.body))
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNormalizeAPIHost(t *testing.T) {
	assert.Equal(t, "parkeren.hilversum.nl", registry.NormalizeAPIHost(" https://parkeren.hilversum.nl/portal "))
	assert.Equal(t, "parkeren.hilversum.nl", registry.NormalizeAPIHost("parkeren.hilversum.nl"))
	assert.Equal(t, "", registry.NormalizeAPIHost("  "))
}
