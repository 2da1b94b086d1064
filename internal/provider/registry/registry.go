// Package registry holds the provider and municipality metadata shipped with
// the application.
package registry

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed municipalities.yaml
var municipalities []byte

const (
	UniqueIDAccount    = "account_id"
	UniqueIDIdentifier = "identifier"
)

// Field describes a credential field a provider needs.
type Field struct {
	Key      string `yaml:"key" json:"key"`
	Required bool   `yaml:"required" json:"required"`
	Source   string `yaml:"source,omitempty" json:"source,omitempty"`
	Show     *bool  `yaml:"show,omitempty" json:"-"`
}

// Provider describes a supported parking provider.
type Provider struct {
	Label            string  `yaml:"label" json:"label"`
	UniqueIDStrategy string  `yaml:"unique_id_strategy" json:"uniqueIdStrategy"`
	Fields           []Field `yaml:"fields" json:"fields"`
}

// Municipality is a selectable municipality. Selection is the api host where
// set, otherwise the provider name.
type Municipality struct {
	Name     string `yaml:"name" json:"name"`
	Provider string `yaml:"provider" json:"provider"`
	APIHost  string `yaml:"api_host,omitempty" json:"apiHost,omitempty"`
}

func (m Municipality) Selection() string {
	if m.APIHost != "" {
		return m.APIHost
	}
	return m.Provider
}

type Registry struct {
	Providers      map[string]Provider `yaml:"providers"`
	Municipalities []Municipality      `yaml:"municipalities"`
}

// Municipality looks a municipality up by its selection key.
func (r *Registry) Municipality(selection string) (Municipality, bool) {
	for _, m := range r.Municipalities {
		if m.Selection() == selection {
			return m, true
		}
	}
	return Municipality{}, false
}

// Load parses a registry document.
func Load(r io.Reader) (*Registry, error) {
	var reg Registry
	if err := yaml.NewDecoder(r).Decode(&reg); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}
	if len(reg.Providers) == 0 {
		return nil, fmt.Errorf("registry has no providers")
	}
	for name, p := range reg.Providers {
		if p.UniqueIDStrategy != UniqueIDAccount && p.UniqueIDStrategy != UniqueIDIdentifier {
			return nil, fmt.Errorf("provider %q: unknown unique_id_strategy %q", name, p.UniqueIDStrategy)
		}
	}
	for _, m := range reg.Municipalities {
		if _, ok := reg.Providers[m.Provider]; !ok {
			return nil, fmt.Errorf("municipality %q: unknown provider %q", m.Name, m.Provider)
		}
	}
	return &reg, nil
}

var (
	loadOnce sync.Once
	loaded   *Registry
	loadErr  error
)

// Get returns the embedded registry, parsed once.
func Get() (*Registry, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Load(bytes.NewReader(municipalities))
	})
	return loaded, loadErr
}

// NormalizeAPIHost strips the scheme and path from an api host value.
func NormalizeAPIHost(value string) string {
	value = strings.TrimSpace(value)
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(value, prefix) {
			value = value[len(prefix):]
			break
		}
	}
	if i := strings.IndexByte(value, '/'); i >= 0 {
		value = value[:i]
	}
	return value
}
