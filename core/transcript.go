package orchestration

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of the conversation a transcript entry belongs
// to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one spoken turn. Interim entries are provisional and
// are replaced in place until the turn settles into a final entry.
type TranscriptEntry struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time
	Final     bool
}

// TranscriptSnapshot is the observable transcript: settled entries in
// insertion order, plus the live caption when one is showing.
type TranscriptSnapshot struct {
	Entries    []TranscriptEntry
	Caption    string
	HasCaption bool
}

// transcriptLog holds the conversation transcript. At most one interim entry
// exists per role; final entries accumulate in insertion order. Callers
// synchronize access.
type transcriptLog struct {
	entries []TranscriptEntry
	clock   func() time.Time
}

func newTranscriptLog(clock func() time.Time) *transcriptLog {
	return &transcriptLog{clock: clock}
}

// addInterim updates the role's interim entry in place, keeping its ID and
// position, or inserts one when none exists. The touched entry becomes the
// caption source.
func (t *transcriptLog) addInterim(role Role, text string) {
	for i := range t.entries {
		if t.entries[i].Role == role && !t.entries[i].Final {
			t.entries[i].Text = text
			t.entries[i].Timestamp = t.clock()
			return
		}
	}

	t.entries = append(t.entries, TranscriptEntry{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: t.clock(),
	})
}

// addFinal removes the role's interim entry and appends a final one.
func (t *transcriptLog) addFinal(role Role, text string) {
	for i := range t.entries {
		if t.entries[i].Role == role && !t.entries[i].Final {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}

	t.entries = append(t.entries, TranscriptEntry{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: t.clock(),
		Final:     true,
	})
}

func (t *transcriptLog) clear() {
	t.entries = nil
}

// caption returns the most recently touched interim text across both roles.
func (t *transcriptLog) caption() (string, bool) {
	found := false
	var latest time.Time
	var text string

	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Final {
			continue
		}
		if !found || !entry.Timestamp.Before(latest) {
			found = true
			latest = entry.Timestamp
			text = entry.Text
		}
	}

	return text, found
}

// finals returns the settled entries in insertion order.
func (t *transcriptLog) finals() []TranscriptEntry {
	finals := make([]TranscriptEntry, 0, len(t.entries))
	for _, entry := range t.entries {
		if entry.Final {
			finals = append(finals, entry)
		}
	}
	return finals
}
