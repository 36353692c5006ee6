package httpbridge

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCallbackTTLMinutes = 24 * 60
	DefaultMaxCallbackEntries = 10_000
)

// CallbackEntry is a remembered callback URL for one conversation.
type CallbackEntry struct {
	URL       string
	AccountID string
	UpdatedAt time.Time

	seq uint64 // first-insertion order, breaks UpdatedAt ties on eviction
}

// Directory maps conversation ids to callback URLs. Entries expire after the
// account's TTL and the directory is capped at the account's max entries;
// both limits are applied by the account performing the operation.
type Directory struct {
	mu      sync.Mutex
	entries map[string]*CallbackEntry
	nextSeq uint64
	now     func() time.Time
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) { d.now = now }
}

func NewDirectory(opts ...DirectoryOption) *Directory {
	d := &Directory{entries: make(map[string]*CallbackEntry), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func ttlFor(account ResolvedAccount) time.Duration {
	minutes := account.Config.CallbackTTLMinutes
	if minutes <= 0 {
		minutes = DefaultCallbackTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func maxEntriesFor(account ResolvedAccount) int {
	if n := account.Config.MaxCallbackEntries; n > 0 {
		return n
	}
	return DefaultMaxCallbackEntries
}

// Remember stores url for conversationID, then prunes expired entries and
// evicts the oldest ones beyond capacity.
func (d *Directory) Remember(conversationID, url string, account ResolvedAccount) {
	key := strings.TrimSpace(conversationID)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	entry, ok := d.entries[key]
	if !ok {
		d.nextSeq++
		entry = &CallbackEntry{seq: d.nextSeq}
		d.entries[key] = entry
	}
	entry.URL = url
	entry.AccountID = account.AccountID
	entry.UpdatedAt = now

	d.pruneExpired(now, ttlFor(account))
	d.pruneOverflow(maxEntriesFor(account))
}

// Resolve returns the remembered URL for conversationID and refreshes its
// timestamp. Without an entry it falls back to the account's callback
// default; ok is false when that is empty too.
func (d *Directory) Resolve(conversationID string, account ResolvedAccount) (url string, ok bool) {
	key := strings.TrimSpace(conversationID)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.pruneExpired(now, ttlFor(account))
	if entry, found := d.entries[key]; found {
		entry.UpdatedAt = now
		return entry.URL, true
	}
	def := account.Config.CallbackDefault
	return def, def != ""
}

// Entry returns a copy of the entry for conversationID without refreshing it.
func (d *Directory) Entry(conversationID string) (CallbackEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[strings.TrimSpace(conversationID)]
	if !ok {
		return CallbackEntry{}, false
	}
	return *entry, true
}

func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]*CallbackEntry)
	d.nextSeq = 0
}

func (d *Directory) pruneExpired(now time.Time, ttl time.Duration) {
	cutoff := now.Add(-ttl)
	for key, entry := range d.entries {
		if entry.UpdatedAt.Before(cutoff) {
			delete(d.entries, key)
		}
	}
}

func (d *Directory) pruneOverflow(maxEntries int) {
	if len(d.entries) <= maxEntries {
		return
	}
	type keyed struct {
		key   string
		entry *CallbackEntry
	}
	all := make([]keyed, 0, len(d.entries))
	for k, e := range d.entries {
		all = append(all, keyed{k, e})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].entry, all[j].entry
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.seq < b.seq
	})
	for _, k := range all[:len(all)-maxEntries] {
		delete(d.entries, k.key)
	}
}
