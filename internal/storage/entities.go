package storage

import "time"

type User struct {
	ID        int64
	Name      string
	Handle    string
	CreatedAt time.Time
}

type QueueEntry struct {
	UserID     int64
	EnqueuedAt time.Time
}

type Match struct {
	ID            int64
	UserA         int64
	UserB         int64
	StartedAt     time.Time
	TimedOut      bool
	LivesA        int
	LivesB        int
	TurnStartedAt time.Time
	CurrentTurn   int64
}

// Other returns the participant opposite to id. The caller is expected to
// have checked participation first.
func (m *Match) Other(id int64) int64 {
	if id == m.UserA {
		return m.UserB
	}
	return m.UserA
}

// HasParticipant reports whether id is one of the two match participants
func (m *Match) HasParticipant(id int64) bool {
	return id == m.UserA || id == m.UserB
}

type Message struct {
	ID        int64
	MatchID   int64
	SenderID  int64
	Body      string
	Edited    bool
	CreatedAt time.Time
}

type Transcript struct {
	MatchID int64
	Payload []byte
	SavedAt time.Time
}
