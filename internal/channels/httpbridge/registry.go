package httpbridge

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
)

// StatusPatch carries activity timestamps reported by the handler.
// Zero fields are left unchanged.
type StatusPatch struct {
	LastInboundAt  time.Time
	LastOutboundAt time.Time
	LastError      string
}

// WebhookTarget binds one started account to one webhook path.
type WebhookTarget struct {
	Account    ResolvedAccount
	Config     *config.Config // snapshot at registration
	Path       string         // normalized by Register
	StatusSink func(StatusPatch)
}

func (t *WebhookTarget) report(p StatusPatch) {
	if t.StatusSink != nil {
		t.StatusSink(p)
	}
}

// NormalizeWebhookPath trims raw, maps empty to "/", adds a leading slash
// and drops one trailing slash (except for the root).
func NormalizeWebhookPath(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	if len(trimmed) > 1 && strings.HasSuffix(trimmed, "/") {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed
}

// Registry maps normalized paths to the targets listening on them, in
// registration order. Lists are replaced, never mutated in place, so a
// slice returned by Lookup stays valid.
type Registry struct {
	mu      sync.Mutex
	targets map[string][]*WebhookTarget
}

func NewRegistry() *Registry {
	return &Registry{targets: make(map[string][]*WebhookTarget)}
}

// Register adds a copy of target under its normalized path and returns a
// function that removes exactly that registration. Calling it again is a
// no-op.
func (r *Registry) Register(target WebhookTarget) (unregister func()) {
	key := NormalizeWebhookPath(target.Path)
	entry := &target
	entry.Path = key

	r.mu.Lock()
	existing := r.targets[key]
	next := make([]*WebhookTarget, 0, len(existing)+1)
	next = append(next, existing...)
	r.targets[key] = append(next, entry)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(key, entry) })
	}
}

func (r *Registry) remove(key string, entry *WebhookTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.targets[key]
	updated := make([]*WebhookTarget, 0, len(existing))
	for _, t := range existing {
		if t != entry {
			updated = append(updated, t)
		}
	}
	if len(updated) > 0 {
		r.targets[key] = updated
	} else {
		delete(r.targets, key)
	}
}

// Lookup returns the targets registered on path, oldest first.
func (r *Registry) Lookup(path string) []*WebhookTarget {
	key := NormalizeWebhookPath(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	targets := r.targets[key]
	if len(targets) == 0 {
		return nil
	}
	out := make([]*WebhookTarget, len(targets))
	copy(out, targets)
	return out
}

// Paths lists every path with at least one target.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.targets))
	for p := range r.targets {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Reset drops every registration.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = make(map[string][]*WebhookTarget)
}
