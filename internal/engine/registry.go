package engine

import (
	"sort"
	"sync"
)

// SourceRegistry owns citation identity for a run. It maps URLs to stable
// integer ids assigned on first sight, starting at 1. It is the only object
// mutated by more than one concurrent topic worker, so every operation takes
// the mutex; ids are never reused or renumbered.
type SourceRegistry struct {
	mu     sync.Mutex
	byURL  map[string]int
	titles map[int]string
	next   int
}

// NewSourceRegistry creates an empty registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		byURL:  make(map[string]int),
		titles: make(map[int]string),
		next:   1,
	}
}

// IDFor returns the citation id for url, allocating the next id if the URL
// has not been seen before. Safe under concurrent invocation.
func (r *SourceRegistry) IDFor(url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byURL[url]; ok {
		return id
	}
	id := r.next
	r.next++
	r.byURL[url] = id
	return id
}

// Register is IDFor plus title capture for the sources list. The first
// non-empty title seen for a URL wins.
func (r *SourceRegistry) Register(url, title string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byURL[url]
	if !ok {
		id = r.next
		r.next++
		r.byURL[url] = id
	}
	if _, has := r.titles[id]; !has && title != "" {
		r.titles[id] = title
	}
	return id
}

// Len reports how many distinct URLs have been registered.
func (r *SourceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byURL)
}

// Sources returns the full table sorted by id.
func (r *SourceRegistry) Sources() []Source {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Source, 0, len(r.byURL))
	for url, id := range r.byURL {
		out = append(out, Source{ID: id, URL: url, Title: r.titles[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
