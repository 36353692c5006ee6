package httpbridge

import (
	"sort"
	"sync"
	"time"
)

// AccountStatus is the runtime snapshot of one account.
type AccountStatus struct {
	AccountID      string     `json:"accountId"`
	Name           string     `json:"name,omitempty"`
	Enabled        bool       `json:"enabled"`
	Configured     bool       `json:"configured"`
	Running        bool       `json:"running"`
	WebhookPath    string     `json:"webhookPath,omitempty"`
	LastStartAt    *time.Time `json:"lastStartAt"`
	LastStopAt     *time.Time `json:"lastStopAt"`
	LastError      *string    `json:"lastError"`
	LastInboundAt  *time.Time `json:"lastInboundAt"`
	LastOutboundAt *time.Time `json:"lastOutboundAt"`
}

// statusTracker holds per-account status and reports every change.
type statusTracker struct {
	mu       sync.Mutex
	accounts map[string]*AccountStatus
	onChange func(AccountStatus)
}

func newStatusTracker(onChange func(AccountStatus)) *statusTracker {
	return &statusTracker{accounts: make(map[string]*AccountStatus), onChange: onChange}
}

func (s *statusTracker) update(accountID string, fn func(*AccountStatus)) {
	s.mu.Lock()
	st, ok := s.accounts[accountID]
	if !ok {
		st = &AccountStatus{AccountID: accountID}
		s.accounts[accountID] = st
	}
	fn(st)
	snapshot := *st
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(snapshot)
	}
}

func (s *statusTracker) apply(accountID string, p StatusPatch) {
	s.update(accountID, func(st *AccountStatus) {
		if !p.LastInboundAt.IsZero() {
			st.LastInboundAt = timePtr(p.LastInboundAt)
		}
		if !p.LastOutboundAt.IsZero() {
			st.LastOutboundAt = timePtr(p.LastOutboundAt)
		}
		if p.LastError != "" {
			msg := p.LastError
			st.LastError = &msg
		}
	})
}

func (s *statusTracker) get(accountID string) (AccountStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[accountID]
	if !ok {
		return AccountStatus{}, false
	}
	return *st, true
}

func (s *statusTracker) snapshot() []AccountStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AccountStatus, 0, len(s.accounts))
	for _, st := range s.accounts {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
