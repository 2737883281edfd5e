package discovery

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// VendorProfile is spec.md's glossary tuple: (ports, paths, header
// substrings, default rtsp/http templates, default credentials, features).
type VendorProfile struct {
	Name               string            `yaml:"name"`
	Ports              []int             `yaml:"ports"`
	Paths              []string          `yaml:"paths"`
	Headers            []string          `yaml:"headers"`
	DefaultRTSP        string            `yaml:"default_rtsp"`
	DefaultHTTP        string            `yaml:"default_http"`
	DefaultCredentials map[string]string `yaml:"default_credentials"`
	Features           []string          `yaml:"features"`
}

type vendorFile struct {
	Vendors []VendorProfile `yaml:"vendors"`
}

// ProfileSet is a hot-reloadable, read-mostly collection of VendorProfiles.
// Reload is grounded on the teacher's internal/license/watcher.go fsnotify
// idiom: a background watcher swaps a new slice in under a mutex.
type ProfileSet struct {
	mu       sync.RWMutex
	profiles []VendorProfile
}

func LoadProfiles(path string) (*ProfileSet, error) {
	ps := &ProfileSet{}
	if err := ps.reload(path); err != nil {
		return nil, err
	}
	return ps, nil
}

func (ps *ProfileSet) reload(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read vendor profiles: %w", err)
	}
	var vf vendorFile
	if err := yaml.Unmarshal(raw, &vf); err != nil {
		return fmt.Errorf("parse vendor profiles: %w", err)
	}
	ps.mu.Lock()
	ps.profiles = vf.Vendors
	ps.mu.Unlock()
	return nil
}

func (ps *ProfileSet) Profiles() []VendorProfile {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]VendorProfile, len(ps.profiles))
	copy(out, ps.profiles)
	return out
}

// AllPorts returns the deduplicated union of every profile's ports, the
// set Scan probes per host.
func (ps *ProfileSet) AllPorts() []int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	seen := map[int]bool{}
	var out []int
	for _, p := range ps.profiles {
		for _, port := range p.Ports {
			if !seen[port] {
				seen[port] = true
				out = append(out, port)
			}
		}
	}
	return out
}
