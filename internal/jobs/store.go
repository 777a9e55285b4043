package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Monitor watches one URL for content changes.
type Monitor struct {
	URL             string `json:"url"`
	NotifyTo        string `json:"notify_to"`
	LastFingerprint string `json:"last_fingerprint,omitempty"`
}

// Briefing sends a topical digest on a schedule. Frequency is informational:
// the sweep fires every invocation and the operator chooses the invocation
// cadence (see DESIGN.md).
type Briefing struct {
	Topic     string `json:"topic"`
	NotifyTo  string `json:"notify_to"`
	Frequency string `json:"frequency,omitempty"`
}

// CompetitorWatch aggregates a set of feeds and always reports, even when
// there are no updates.
type CompetitorWatch struct {
	Feeds    []string `json:"feeds"`
	NotifyTo string   `json:"notify_to"`
}

// JobAlert reports feed items matching any of its keywords.
type JobAlert struct {
	Keywords []string `json:"keywords"`
	Feeds    []string `json:"feeds"`
	NotifyTo string   `json:"notify_to"`
}

const (
	monitorsFile  = "monitors.json"
	briefingsFile = "briefings.json"
	watchesFile   = "watches.json"
	alertsFile    = "job_alerts.json"
)

// Store is the durable collection of persisted jobs: one JSON file per job
// type under dir, loaded fully into memory and rewritten wholesale after
// every mutation. Jobs have no ids; identity is positional. Concurrent
// processes racing on the same dir need an external lock (the sweeper takes
// a redis lock when configured).
type Store struct {
	dir string

	mu        sync.Mutex
	monitors  []Monitor
	briefings []Briefing
	watches   []CompetitorWatch
	alerts    []JobAlert
}

// Open loads the collections from dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir %s: %w", dir, err)
	}
	s := &Store{dir: dir}
	if err := load(filepath.Join(dir, monitorsFile), &s.monitors); err != nil {
		return nil, err
	}
	if err := load(filepath.Join(dir, briefingsFile), &s.briefings); err != nil {
		return nil, err
	}
	if err := load(filepath.Join(dir, watchesFile), &s.watches); err != nil {
		return nil, err
	}
	if err := load(filepath.Join(dir, alertsFile), &s.alerts); err != nil {
		return nil, err
	}
	return s, nil
}

func load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// save rewrites one collection atomically (write temp, rename over).
func (s *Store) save(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// AddMonitor appends m and persists immediately.
func (s *Store) AddMonitor(m Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors = append(s.monitors, m)
	return s.save(monitorsFile, s.monitors)
}

// AddBriefing appends b and persists immediately.
func (s *Store) AddBriefing(b Briefing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.briefings = append(s.briefings, b)
	return s.save(briefingsFile, s.briefings)
}

// AddCompetitorWatch appends w and persists immediately.
func (s *Store) AddCompetitorWatch(w CompetitorWatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches = append(s.watches, w)
	return s.save(watchesFile, s.watches)
}

// AddJobAlert appends a and persists immediately.
func (s *Store) AddJobAlert(a JobAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.save(alertsFile, s.alerts)
}

// Monitors returns a copy of the monitor collection.
func (s *Store) Monitors() []Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Monitor, len(s.monitors))
	copy(out, s.monitors)
	return out
}

// Briefings returns a copy of the briefing collection.
func (s *Store) Briefings() []Briefing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Briefing, len(s.briefings))
	copy(out, s.briefings)
	return out
}

// CompetitorWatches returns a copy of the watch collection.
func (s *Store) CompetitorWatches() []CompetitorWatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CompetitorWatch, len(s.watches))
	copy(out, s.watches)
	return out
}

// JobAlerts returns a copy of the alert collection.
func (s *Store) JobAlerts() []JobAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobAlert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// SetMonitorFingerprint updates the fingerprint of the monitor at index i
// (identity is positional) and persists the collection.
func (s *Store) SetMonitorFingerprint(i int, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.monitors) {
		return fmt.Errorf("monitor index %d out of range", i)
	}
	s.monitors[i].LastFingerprint = fingerprint
	return s.save(monitorsFile, s.monitors)
}
