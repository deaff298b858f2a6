package views

import (
	"slices"
	"sync"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// Panels tracks which facet panels are expanded. It is the only state the
// views keep; it is never written to the route.
type Panels struct {
	mu   sync.Mutex
	open map[string]bool
}

// NewPanels seeds panel state from the filters' open-by-default flags.
func NewPanels(filters []model.FilterConfig) *Panels {
	p := &Panels{open: make(map[string]bool)}
	p.Sync(filters)
	return p
}

// Sync adopts a new filter configuration. Panels the user already toggled
// keep their state; new ones start at their default; vanished ones are
// forgotten.
func (p *Panels) Sync(filters []model.FilterConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make(map[string]bool, len(filters))
	for _, f := range filters {
		if open, ok := p.open[f.Name]; ok {
			next[f.Name] = open
			continue
		}
		next[f.Name] = f.OpenByDefault
	}
	p.open = next
}

// Toggle flips a panel and returns its new state. Unknown panels are
// created open.
func (p *Panels) Toggle(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[name] = !p.open[name]
	return p.open[name]
}

// IsOpen reports whether a panel is expanded.
func (p *Panels) IsOpen(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open[name]
}

// Open returns the names of the expanded panels, sorted.
func (p *Panels) Open() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for name, open := range p.open {
		if open {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
