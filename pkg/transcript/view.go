package transcript

import (
	"sync"

	"scripturechat/pkg/domain"
)

// View is the client-side transcript of the current session. Remote
// snapshots are authoritative; provisional local entries are listed after
// them until a message with the same ID shows up remotely.
type View struct {
	mu        sync.Mutex
	sessionID string
	remote    []domain.ChatMessage
	pending   []domain.ChatMessage
	status    string
}

// NewView returns an empty view bound to sessionID.
func NewView(sessionID string) *View {
	return &View{sessionID: sessionID}
}

// SessionID returns the session the view is bound to.
func (v *View) SessionID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sessionID
}

// AddPending shows msg immediately, before the store confirms it.
func (v *View) AddPending(msg domain.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if msg.SessionID != "" && msg.SessionID != v.sessionID {
		return
	}
	v.pending = append(v.pending, msg)
}

// DropPending removes the provisional entry id and reports whether it was
// present.
func (v *View) DropPending(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, p := range v.pending {
		if p.ID == id {
			v.pending = append(v.pending[:i:i], v.pending[i+1:]...)
			return true
		}
	}
	return false
}

// ApplySnapshot replaces the remote transcript. Snapshots for any other
// session are discarded and reported as not applied.
func (v *View) ApplySnapshot(sessionID string, msgs []domain.ChatMessage) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if sessionID != v.sessionID {
		return false
	}
	v.remote = append(v.remote[:0:0], msgs...)
	seen := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		seen[m.ID] = struct{}{}
	}
	kept := v.pending[:0:0]
	for _, p := range v.pending {
		if _, ok := seen[p.ID]; !ok {
			kept = append(kept, p)
		}
	}
	v.pending = kept
	return true
}

// SetStatus updates the transient status line for sessionID.
func (v *View) SetStatus(sessionID, status string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if sessionID == v.sessionID {
		v.status = status
	}
}

// Apply folds a watch update into the view.
func (v *View) Apply(u Update) bool {
	switch u.Kind {
	case UpdateSnapshot:
		return v.ApplySnapshot(u.SessionID, u.Messages)
	case UpdateStatus:
		v.SetStatus(u.SessionID, u.Status)
		return u.SessionID == v.SessionID()
	}
	return false
}

// Reset rebinds the view to a new session and clears everything.
func (v *View) Reset(sessionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sessionID = sessionID
	v.remote = nil
	v.pending = nil
	v.status = ""
}

// Messages returns the merged transcript.
func (v *View) Messages() []domain.ChatMessage {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.ChatMessage, 0, len(v.remote)+len(v.pending))
	out = append(out, v.remote...)
	return append(out, v.pending...)
}

// Status returns the current status line.
func (v *View) Status() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}
