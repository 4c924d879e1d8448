package eventgen

import (
	"sort"
	"time"

	"github.com/geoaware/backend/internal/models"
)

// Session is a user's open visit to a fence
type Session struct {
	FenceID   string
	HasViewed bool
	EntryTime time.Time
}

// Sessions tracks which users are inside which fence so every generated
// event is consistent with the ones before it.
type Sessions struct {
	open map[string]*Session
}

// NewSessions creates an empty tracker
func NewSessions() *Sessions {
	return &Sessions{open: make(map[string]*Session)}
}

// Reset forgets every open session
func (s *Sessions) Reset() {
	s.open = make(map[string]*Session)
}

// Get returns the user's open session
func (s *Sessions) Get(userID string) (Session, bool) {
	sess, ok := s.open[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Len is the number of open sessions
func (s *Sessions) Len() int { return len(s.open) }

// Allowed reports whether an event of type t by userID on fenceID keeps the
// history valid: entries need no open session, views need an unviewed
// session on that fence and exits need a session on that fence.
func (s *Sessions) Allowed(t models.EventType, userID, fenceID string) bool {
	sess, ok := s.open[userID]
	switch t {
	case models.EventEntry:
		return !ok
	case models.EventContentView:
		return ok && sess.FenceID == fenceID && !sess.HasViewed
	case models.EventExit:
		return ok && sess.FenceID == fenceID
	}
	return false
}

// Apply records an event that was accepted by the backend
func (s *Sessions) Apply(t models.EventType, userID, fenceID string, at time.Time) {
	switch t {
	case models.EventEntry:
		s.open[userID] = &Session{FenceID: fenceID, EntryTime: at}
	case models.EventContentView:
		if sess, ok := s.open[userID]; ok && sess.FenceID == fenceID {
			sess.HasViewed = true
		}
	case models.EventExit:
		if sess, ok := s.open[userID]; ok && sess.FenceID == fenceID {
			delete(s.open, userID)
		}
	}
}

// Viewers returns users that can still view content, optionally limited
// to one fence. The result is sorted for reproducible picks.
func (s *Sessions) Viewers(fenceID string) []string {
	return s.users(func(sess *Session) bool {
		return !sess.HasViewed && (fenceID == "" || sess.FenceID == fenceID)
	})
}

// Leavers returns users with an open session, optionally limited to one fence
func (s *Sessions) Leavers(fenceID string) []string {
	return s.users(func(sess *Session) bool {
		return fenceID == "" || sess.FenceID == fenceID
	})
}

func (s *Sessions) users(keep func(*Session) bool) []string {
	var out []string
	for id, sess := range s.open {
		if keep(sess) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
