package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/layers"
	"github.com/joeblew999/plat-slackmap/internal/logging"
)

// StyleService persists category style overrides in styles.json. Categories
// without an override use the built-in defaults.
type StyleService struct {
	dataDir string
	bus     *EventBus
	log     zerolog.Logger

	mu        sync.RWMutex
	overrides layers.Styles
}

// NewStyleService loads overrides from dataDir. A nil bus disables events.
func NewStyleService(dataDir string, bus *EventBus) *StyleService {
	s := &StyleService{
		dataDir:   dataDir,
		bus:       bus,
		log:       logging.With("styles"),
		overrides: make(layers.Styles),
	}
	s.loadFromDisk()
	return s
}

// Styles returns the effective style of every category.
func (s *StyleService) Styles() layers.Styles {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := layers.DefaultStyles()
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

// List returns the effective styles ordered by category.
func (s *StyleService) List() []layers.CategoryStyle {
	all := s.Styles()
	out := make([]layers.CategoryStyle, 0, len(all))
	for _, st := range all {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// Get returns the effective style of one category.
func (s *StyleService) Get(c layers.Category) (layers.CategoryStyle, error) {
	st, ok := s.Styles()[c]
	if !ok {
		return layers.CategoryStyle{}, fmt.Errorf("%w: style %q", ErrNotFound, c)
	}
	return st, nil
}

// Update overrides the style of category c.
func (s *StyleService) Update(c layers.Category, st layers.CategoryStyle) (layers.CategoryStyle, error) {
	if _, ok := layers.DefaultStyles()[c]; !ok {
		return layers.CategoryStyle{}, fmt.Errorf("%w: style %q", ErrNotFound, c)
	}
	st.Category = c

	s.mu.Lock()
	prev, had := s.overrides[c]
	s.overrides[c] = st
	if err := s.saveToDisk(); err != nil {
		if had {
			s.overrides[c] = prev
		} else {
			delete(s.overrides, c)
		}
		s.mu.Unlock()
		return layers.CategoryStyle{}, err
	}
	s.mu.Unlock()

	s.publish("updated", c)
	return st, nil
}

// Reset drops the override of category c.
func (s *StyleService) Reset(c layers.Category) (layers.CategoryStyle, error) {
	def, ok := layers.DefaultStyles()[c]
	if !ok {
		return layers.CategoryStyle{}, fmt.Errorf("%w: style %q", ErrNotFound, c)
	}

	s.mu.Lock()
	prev, had := s.overrides[c]
	if !had {
		s.mu.Unlock()
		return def, nil
	}
	delete(s.overrides, c)
	if err := s.saveToDisk(); err != nil {
		s.overrides[c] = prev
		s.mu.Unlock()
		return layers.CategoryStyle{}, err
	}
	s.mu.Unlock()

	s.publish("deleted", c)
	return def, nil
}

func (s *StyleService) publish(action string, c layers.Category) {
	if s.bus != nil {
		s.bus.Publish(Event{Resource: "styles", Action: action, ID: string(c)})
	}
}

func (s *StyleService) configFile() string {
	return filepath.Join(s.dataDir, "styles.json")
}

func (s *StyleService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // no overrides yet
	}
	var overrides layers.Styles
	if err := json.Unmarshal(data, &overrides); err != nil {
		s.log.Warn().Err(err).Str("file", s.configFile()).Msg("ignoring unreadable styles")
		return
	}
	defaults := layers.DefaultStyles()
	for k, v := range overrides {
		if _, ok := defaults[k]; !ok {
			continue
		}
		v.Category = k
		s.overrides[k] = v
	}
}

// saveToDisk must be called with mu held.
func (s *StyleService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.overrides, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configFile(), data, 0644)
}
