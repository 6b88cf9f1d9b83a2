package domain

// JournalEntry is a single turn as recorded in the audit journal.
type JournalEntry struct {
	PK         string
	SK         string
	SessionID  string
	Generation int64
	Epoch      int
	Seq        int
	Role       Role
	Content    string
	CreatedAt  string
	TTL        int64
}

// SessionMeta stores aggregate session state in the journal.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	Generation   int64
	Epoch        int
	Turns        int
	LastActivity string
	TTL          int64
}

// TurnRef locates a turn in the journal. Generation distinguishes a session
// recreated under an ID that was used before; Epoch counts resets.
type TurnRef struct {
	SessionID  string
	Generation int64
	Epoch      int
	Seq        int
}
