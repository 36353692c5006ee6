package store

// Stores is the top-level container for all storage backends.
type Stores struct {
	Sessions SessionStore
	Backend  string // driver actually in use, for doctor/status output
}

// Close releases every backend.
func (s *Stores) Close() error {
	if s == nil || s.Sessions == nil {
		return nil
	}
	return s.Sessions.Close()
}
