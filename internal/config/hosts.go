package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Hosts is the statically configured part of the fleet: hosts that must be
// tracked whether or not the registry lists them, hosts known to block the
// checker, and per-host overrides for the stats endpoint.
type Hosts struct {
	Additional []AdditionalHost        `yaml:"additional_hosts"`
	Bad        []string                `yaml:"bad_hosts"`
	Overrides  map[string]HostOverride `yaml:"overrides"`
}

type AdditionalHost struct {
	URL     string `yaml:"url"`
	Country string `yaml:"country,omitempty"`
}

type HostOverride struct {
	StatsPath  string `yaml:"stats_path,omitempty"`
	StatsQuery string `yaml:"stats_query,omitempty"`
	Bearer     string `yaml:"bearer,omitempty"`
}

// LoadHosts reads the hosts file. An empty path or a missing file yields an
// empty set; only unreadable or malformed files are errors.
func LoadHosts(path string) (Hosts, error) {
	var h Hosts
	if path == "" {
		return h, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return h, fmt.Errorf("read hosts file: %w", err)
	}
	if err := yaml.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("parse hosts file: %w", err)
	}
	return h, nil
}

// IsBad reports whether domain is on the bad-host list.
func (h Hosts) IsBad(domain string) bool {
	for _, d := range h.Bad {
		if d == domain {
			return true
		}
	}
	return false
}

// Override returns the per-host override for domain, zero when absent.
func (h Hosts) Override(domain string) HostOverride {
	return h.Overrides[domain]
}
