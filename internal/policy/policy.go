// Package policy loads and serves PolicySnapshot profiles: named bundles of
// budgets, timeboxes, and string-valued policy rules consulted by the
// Attack and Defense transition functions and their orchestrators.
//
// Policy file: policies.yaml (path given on the command line).
// Schema: a map of profile name -> profile body. A "default" profile is
// required; scenario files may select any other profile by name.
//
// Hot-reload: WatchReload listens for SIGHUP and re-loads the file in place.
// A reload that fails validation leaves the previously loaded profiles
// active and logs the error — the process does not crash on a bad
// hot-reload, matching how the agent this package is modelled on treats
// config reload failures.
package policy

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultProfileName is the profile every policy file must define.
const DefaultProfileName = "default"

// budgetKeys are the profile keys that must resolve to integers and belong
// in Profile.Budgets.
var budgetKeys = map[string]bool{
	"N_challenge":           true,
	"N_section":             true,
	"N_seat":                true,
	"N_hold":                true,
	"N_txn_rb":              true,
	"seat_taken_threshold":  true,
	"max_retries":           true,
	"challenge_fail_threshold":    true,
	"seat_taken_streak_threshold": true,
	"max_retry_per_state":         true,
}

// timeboxKeys are the profile keys that must resolve to integers (ms) and
// belong in Profile.Timeboxes.
var timeboxKeys = map[string]bool{
	"S0_timeout_ms":     true,
	"S1_timeout_ms":     true,
	"S2_timeout_ms":     true,
	"S3_timeout_ms":     true,
	"S4_timeout_ms":     true,
	"S5_timeout_ms":     true,
	"S6_timeout_ms":     true,
	"global_timeout_ms": true,
}

// Profile is one named policy profile: resource budgets, per-stage
// timeboxes, and string-valued policy rules (e.g.
// "payment_timeout_policy: abort"). All three maps default to empty.
type Profile struct {
	Name       string            `yaml:"-"`
	Budgets    map[string]int    `yaml:"-"`
	Timeboxes  map[string]int    `yaml:"-"`
	Policies   map[string]string `yaml:"-"`
}

// GetBudget returns the named budget, or def if unset.
func (p Profile) GetBudget(key string, def int) int {
	if v, ok := p.Budgets[key]; ok {
		return v
	}
	return def
}

// GetTimebox returns the named timebox in ms, or def if unset.
func (p Profile) GetTimebox(key string, def int) int {
	if v, ok := p.Timeboxes[key]; ok {
		return v
	}
	return def
}

// GetPolicy returns the named policy rule string, or def if unset.
func (p Profile) GetPolicy(key string, def string) string {
	if v, ok := p.Policies[key]; ok {
		return v
	}
	return def
}

// Set is a loaded collection of named profiles, keyed by profile name.
// A Set always contains a "default" profile once successfully loaded.
type Set struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	path     string
}

// Defaults returns a single-profile Set containing a "default" profile
// with the baseline budgets used when no policy file is supplied.
func Defaults() *Set {
	return &Set{
		profiles: map[string]Profile{
			DefaultProfileName: {
				Name: DefaultProfileName,
				Budgets: map[string]int{
					"N_challenge":          2,
					"N_section":            4,
					"N_seat":               3,
					"N_hold":               2,
					"N_txn_rb":             1,
					"seat_taken_threshold": 7,
					"max_retries":          3,
					"challenge_fail_threshold":    3,
					"seat_taken_streak_threshold": 7,
					"max_retry_per_state":         3,
				},
				Timeboxes: map[string]int{
					"S0_timeout_ms":     5000,
					"S1_timeout_ms":     30000,
					"S2_timeout_ms":     60000,
					"S3_timeout_ms":     30000,
					"S4_timeout_ms":     30000,
					"S5_timeout_ms":     30000,
					"S6_timeout_ms":     45000,
					"global_timeout_ms": 600000,
				},
				Policies: map[string]string{
					"payment_timeout_policy":  "abort",
					"seat_taken_policy":       "retry",
					"hold_fail_policy":        "retry",
					"section_empty_policy":    "abort",
					"challenge_fail_policy":   "abort",
					"rollback_policy":         "retry",
				},
			},
		},
	}
}

// rawProfile is the shape a profile takes in the YAML file: an open map of
// scalar values, classified into budgets/timeboxes/policies by key during
// parsing.
type rawProfile map[string]any

// Load reads profiles.yaml-shaped YAML from path and returns a Set.
// Returns an error if the file cannot be read, parsed, or fails schema
// validation (including a missing "default" profile).
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy.Load: read %q: %w", path, err)
	}

	var raw map[string]rawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policy.Load: parse %q: %w", path, err)
	}

	set, err := fromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("policy.Load: %w", err)
	}
	set.path = path
	return set, nil
}

func fromRaw(raw map[string]rawProfile) (*Set, error) {
	profiles := make(map[string]Profile, len(raw))
	for name, body := range raw {
		p, err := parseProfile(name, body)
		if err != nil {
			return nil, err
		}
		profiles[name] = p
	}
	if _, ok := profiles[DefaultProfileName]; !ok {
		return nil, fmt.Errorf("%q profile is required", DefaultProfileName)
	}
	return &Set{profiles: profiles}, nil
}

func parseProfile(name string, data rawProfile) (Profile, error) {
	budgets := make(map[string]int)
	timeboxes := make(map[string]int)
	policies := make(map[string]string)

	for key, value := range data {
		switch {
		case budgetKeys[key]:
			n, ok := toInt(value)
			if !ok {
				return Profile{}, fmt.Errorf("profile %q: budget %q must be an integer", name, key)
			}
			budgets[key] = n
		case timeboxKeys[key]:
			n, ok := toInt(value)
			if !ok {
				return Profile{}, fmt.Errorf("profile %q: timebox %q must be an integer", name, key)
			}
			timeboxes[key] = n
		default:
			policies[key] = fmt.Sprintf("%v", value)
		}
	}

	return Profile{Name: name, Budgets: budgets, Timeboxes: timeboxes, Policies: policies}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// Get returns the named profile. ok is false if no such profile was
// loaded.
func (s *Set) Get(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	return p, ok
}

// Default returns the required "default" profile.
func (s *Set) Default() Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles[DefaultProfileName]
}

// Names returns the loaded profile names.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.profiles))
	for n := range s.profiles {
		names = append(names, n)
	}
	return names
}

// replace atomically swaps in a freshly loaded profile map.
func (s *Set) replace(profiles map[string]Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = profiles
}

// WatchReload installs a SIGHUP handler that re-reads the file this Set
// was loaded from and atomically swaps in the new profiles. A reload that
// fails to parse or validate is logged and the previous profiles stay
// active. WatchReload returns immediately; the handler runs until ctx-less
// process exit (there is no Stop — this mirrors the agent's
// run-for-the-life-of-the-process reload loop).
func (s *Set) WatchReload(log *zap.Logger) {
	if s.path == "" {
		log.Warn("policy: WatchReload called on a Set with no backing file, ignoring")
		return
	}
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			data, err := os.ReadFile(s.path)
			if err != nil {
				log.Error("policy: hot-reload read failed, keeping previous profiles", zap.Error(err))
				continue
			}
			var raw map[string]rawProfile
			if err := yaml.Unmarshal(data, &raw); err != nil {
				log.Error("policy: hot-reload parse failed, keeping previous profiles", zap.Error(err))
				continue
			}
			next, err := fromRaw(raw)
			if err != nil {
				log.Error("policy: hot-reload validation failed, keeping previous profiles", zap.Error(err))
				continue
			}
			s.replace(next.profiles)
			log.Info("policy: hot-reloaded profiles", zap.Strings("profiles", s.Names()))
		}
	}()
}
