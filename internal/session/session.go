// Package session holds the presence and language state of collaboration
// sessions.
//
// A Directory is not safe for concurrent use. It is owned by the relay's
// dispatcher goroutine, which applies every mutation in arrival order, so
// no locking is needed.
package session

// Participant is one connection's identity inside a session. Display names
// are not unique; the connection id is.
type Participant struct {
	ConnID      string
	DisplayName string
}

// Snapshot is the state of a session at one instant.
type Snapshot struct {
	SessionID string
	// Members are ordered by join time.
	Members  []Participant
	Language string
}

// Departure describes a participant leaving a session.
type Departure struct {
	SessionID   string
	Participant Participant
	// Remaining are the members still in the session, who must be told.
	Remaining []Participant
}

type session struct {
	members  []Participant
	language string
}

// Directory maps sessions to their members and language, and connections to
// the single session they belong to.
type Directory struct {
	defaultLanguage string
	sessions        map[string]*session
	membership      map[string]string
}

// NewDirectory creates an empty directory. New sessions start with
// defaultLanguage selected.
func NewDirectory(defaultLanguage string) *Directory {
	return &Directory{
		defaultLanguage: defaultLanguage,
		sessions:        make(map[string]*session),
		membership:      make(map[string]string),
	}
}

// Join adds connID to sessionID and returns the resulting snapshot.
//
// A connection belongs to at most one session. Joining a different session
// first removes it from the old one, and that departure is returned so the
// caller can notify the old session. Joining the same session again only
// updates the display name.
func (d *Directory) Join(connID, sessionID, displayName string) (Snapshot, *Departure) {
	var left *Departure
	if current, ok := d.membership[connID]; ok && current != sessionID {
		left = d.Leave(connID)
	}

	s, ok := d.sessions[sessionID]
	if !ok {
		s = &session{language: d.defaultLanguage}
		d.sessions[sessionID] = s
	}

	p := Participant{ConnID: connID, DisplayName: displayName}
	if i := s.index(connID); i >= 0 {
		s.members[i] = p
	} else {
		s.members = append(s.members, p)
	}
	d.membership[connID] = sessionID

	return d.snapshot(sessionID, s), left
}

// Leave removes connID from its session. It returns nil when the connection
// was in no session, which makes repeated calls harmless. A session left
// with no members is discarded.
func (d *Directory) Leave(connID string) *Departure {
	sessionID, ok := d.membership[connID]
	if !ok {
		return nil
	}
	delete(d.membership, connID)

	s := d.sessions[sessionID]
	i := s.index(connID)
	p := s.members[i]
	s.members = append(s.members[:i], s.members[i+1:]...)

	if len(s.members) == 0 {
		delete(d.sessions, sessionID)
	}

	return &Departure{
		SessionID:   sessionID,
		Participant: p,
		Remaining:   clone(s.members),
	}
}

// Members returns the session's members in join order, or nil when the
// session does not exist.
func (d *Directory) Members(sessionID string) []Participant {
	s, ok := d.sessions[sessionID]
	if !ok {
		return nil
	}
	return clone(s.members)
}

// Language returns the session's selected language.
func (d *Directory) Language(sessionID string) (string, bool) {
	s, ok := d.sessions[sessionID]
	if !ok {
		return "", false
	}
	return s.language, true
}

// SetLanguage selects a language for a live session. The last write wins.
// It reports false when the session does not exist.
func (d *Directory) SetLanguage(sessionID, language string) bool {
	s, ok := d.sessions[sessionID]
	if !ok {
		return false
	}
	s.language = language
	return true
}

// SessionOf returns the session connID belongs to.
func (d *Directory) SessionOf(connID string) (string, bool) {
	id, ok := d.membership[connID]
	return id, ok
}

// Snapshot returns the session's state.
func (d *Directory) Snapshot(sessionID string) (Snapshot, bool) {
	s, ok := d.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}
	return d.snapshot(sessionID, s), true
}

// Len returns the number of live sessions.
func (d *Directory) Len() int {
	return len(d.sessions)
}

func (d *Directory) snapshot(id string, s *session) Snapshot {
	return Snapshot{SessionID: id, Members: clone(s.members), Language: s.language}
}

func (s *session) index(connID string) int {
	for i, p := range s.members {
		if p.ConnID == connID {
			return i
		}
	}
	return -1
}

func clone(ps []Participant) []Participant {
	out := make([]Participant, len(ps))
	copy(out, ps)
	return out
}
