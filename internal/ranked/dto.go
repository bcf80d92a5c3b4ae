package ranked

import "time"

// Status values returned by EnqueueAndMatch and Status
const (
	StatusMatched = "matched"
	StatusWaiting = "waiting"
	StatusIdle    = "idle"
)

// Identity is a user as resolved through the user directory
type Identity struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// Lives holds the per-participant life counters from the caller's point of view
type Lives struct {
	Me      int `json:"me"`
	Partner int `json:"partner"`
}

// MatchState describes the caller's current ranked state. MatchID and the
// session fields are only set when Status is "matched".
type MatchState struct {
	Status        string    `json:"status"`
	MatchID       int64     `json:"matchId,omitempty"`
	Partner       *Identity `json:"partner,omitempty"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	Lives         *Lives    `json:"lives,omitempty"`
	TurnStartedAt time.Time `json:"turnStartedAt,omitempty"`
	ServerTime    time.Time `json:"serverTime"`
	IsMyTurn      bool      `json:"isMyTurn"`
}

// MessageView is a chat message with its sender resolved
type MessageView struct {
	ID        int64     `json:"id"`
	MatchID   int64     `json:"matchId"`
	Sender    Identity  `json:"sender"`
	Body      string    `json:"body"`
	Edited    bool      `json:"edited"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessagesPage carries the full ordered message log of a match together with
// the post-evaluation turn state and a server timestamp, so the client can
// reconcile its local countdown clock.
type MessagesPage struct {
	Messages      []MessageView `json:"messages"`
	TimedOut      bool          `json:"timedOut"`
	TurnStartedAt time.Time     `json:"turnStartedAt"`
	ServerTime    time.Time     `json:"serverTime"`
	IsMyTurn      bool          `json:"isMyTurn"`
}

// TranscriptEntry is a single archived message inside a transcript payload
type TranscriptEntry struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	Sender    Identity  `json:"sender"`
}

// TranscriptView is an archived match transcript
type TranscriptView struct {
	MatchID int64             `json:"matchId"`
	Entries []TranscriptEntry `json:"entries"`
	SavedAt time.Time         `json:"savedAt"`
}
