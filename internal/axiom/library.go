package axiom

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sovereign-research-orchestrator/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Library holds the set of loaded axioms, indexed by id, with optional
// hot-reload from a directory of JSON files.
type Library struct {
	mu      sync.RWMutex
	axioms  map[string]*Axiom
	dir     string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewLibrary creates an empty axiom library.
func NewLibrary() *Library {
	return &Library{axioms: make(map[string]*Axiom)}
}

// LoadDir loads every *.json file in dir as either a single axiom object or
// an array of axioms, replacing the current set.
func (l *Library) LoadDir(dir string) error {
	timer := logging.StartTimer(logging.CategoryAxiom, "LoadDir")
	defer timer.Stop()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryAxiom).Info("axiom directory does not exist yet: %s", dir)
			return nil
		}
		return err
	}

	loaded := make(map[string]*Axiom)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Get(logging.CategoryAxiom).Warn("failed to read axiom file %s: %v", path, err)
			continue
		}

		axioms, err := parseAxiomFile(data)
		if err != nil {
			logging.Get(logging.CategoryAxiom).Warn("failed to parse axiom file %s: %v", path, err)
			continue
		}
		for _, a := range axioms {
			if a.AxiomID == "" {
				continue
			}
			loaded[a.AxiomID] = a
		}
	}

	l.mu.Lock()
	l.axioms = loaded
	l.dir = dir
	l.mu.Unlock()

	logging.Get(logging.CategoryAxiom).Info("loaded %d axioms from %s", len(loaded), dir)
	return nil
}

func parseAxiomFile(data []byte) ([]*Axiom, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return UnmarshalAxiomArray(data)
	}
	a, err := UnmarshalAxiomFile(data)
	if err != nil {
		return nil, err
	}
	return []*Axiom{a}, nil
}

// All returns a snapshot of loaded axioms.
func (l *Library) All() []*Axiom {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Axiom, 0, len(l.axioms))
	for _, a := range l.axioms {
		out = append(out, a)
	}
	return out
}

// Get returns an axiom by id.
func (l *Library) Get(id string) (*Axiom, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.axioms[id]
	return a, ok
}

// Count returns the number of loaded axioms.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.axioms)
}

// ScoreAll sums Score() across every enabled scorer axiom for subj.
func (l *Library) ScoreAll(subj Subject) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, a := range l.axioms {
		if a.Application == ApplicationScorer {
			total += a.Score(subj)
		}
	}
	return total
}

// PassesAll reports whether subj passes every enabled filter axiom.
func (l *Library) PassesAll(subj Subject) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, a := range l.axioms {
		if a.Application == ApplicationFilter && !a.Passes(subj) {
			return false
		}
	}
	return true
}

// StartWatch begins watching the library's source directory for changes,
// reloading on any .json create/write/remove/rename event. Debounces rapid
// saves the same way the teacher's config watcher does.
func (l *Library) StartWatch() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	dir := l.dir
	l.mu.Unlock()

	if dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryAxiom).Warn("axiom watch failed for %s: %v", dir, err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	go l.watchLoop(dir)
	return nil
}

func (l *Library) watchLoop(dir string) {
	defer close(l.doneCh)

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-l.stopCh:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			pending = true
			debounce.Reset(300 * time.Millisecond)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryAxiom).Error("axiom watcher error: %v", err)
		case <-debounce.C:
			if pending {
				pending = false
				if err := l.LoadDir(dir); err != nil {
					logging.Get(logging.CategoryAxiom).Error("axiom reload failed: %v", err)
				}
			}
		}
	}
}

// StopWatch stops the file watcher if running.
func (l *Library) StopWatch() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stopCh := l.stopCh
	doneCh := l.doneCh
	watcher := l.watcher
	l.mu.Unlock()

	close(stopCh)
	<-doneCh
	watcher.Close()
}

// MarshalAxioms serializes a set of axioms as a JSON array, for tests and
// for the host to persist edited axioms back to disk.
func MarshalAxioms(axioms []*Axiom) ([]byte, error) {
	return json.MarshalIndent(axioms, "", "  ")
}
