package session

import (
	"sort"

	"ragchat/internal/chat"
)

// Registry holds the knowledge sources owned by the user. It is not safe for
// concurrent use; the owning Session guards it.
type Registry struct {
	sources []chat.Source
}

func (r *Registry) Replace(sources []chat.Source) {
	r.sources = append([]chat.Source(nil), sources...)
}

// List returns a copy of the sources in display order: the active source first,
// the rest in their stored relative order.
func (r *Registry) List(activeID string) []chat.Source {
	out := append([]chat.Source(nil), r.sources...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID == activeID && out[j].ID != activeID
	})
	return out
}

// Register appends a newly ingested source. Re-ingesting an existing ID replaces
// the entry in place.
func (r *Registry) Register(src chat.Source) {
	for i := range r.sources {
		if r.sources[i].ID == src.ID {
			r.sources[i] = src
			return
		}
	}
	r.sources = append(r.sources, src)
}

func (r *Registry) Remove(id string) bool {
	for i := range r.sources {
		if r.sources[i].ID == id {
			r.sources = append(r.sources[:i:i], r.sources[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) Lookup(id string) (chat.Source, bool) {
	for _, s := range r.sources {
		if s.ID == id {
			return s, true
		}
	}
	return chat.Source{}, false
}

func (r *Registry) Len() int { return len(r.sources) }
