package keys

import (
	"strings"

	"github.com/gdamore/tcell/v2"
)

// Action is a key bound to a handler.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds global bindings and per-page bindings in registration order.
// Page bindings win over global ones.
type Registry struct {
	global []*Action
	pages  map[string][]*Action
}

func NewRegistry() *Registry {
	return &Registry{pages: make(map[string][]*Action)}
}

func (r *Registry) AddGlobal(a *Action) {
	r.global = append(r.global, a)
}

func (r *Registry) AddPage(page string, a *Action) {
	r.pages[page] = append(r.pages[page], a)
}

// Hints renders the page's bindings followed by the global ones, e.g.
// "enter:open  q:quit". Actions without a description are hidden.
func (r *Registry) Hints(page string) string {
	var parts []string
	for _, a := range append(append([]*Action(nil), r.pages[page]...), r.global...) {
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, "  ")
}

// HandleEvent runs the first matching action and reports whether one matched.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	for _, a := range r.pages[page] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
