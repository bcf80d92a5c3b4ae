package testing

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-ranked/internal/storage"
)

// MemStore is an in-memory stand-in for storage.Store. It reproduces the
// conditional-write semantics of the SQL statements (claim-by-delete,
// guarded turn advance, monotonic expiry, insert-once transcript) so engine
// tests run without a database. Safe for concurrent use.
type MemStore struct {
	mu sync.Mutex

	nextMatchID   int64
	nextMessageID int64

	queue       map[int64]time.Time
	matches     map[int64]*storage.Match
	messages    map[int64]*storage.Message
	transcripts map[int64]*storage.Transcript
}

// NewMemStore returns an empty MemStore
func NewMemStore() *MemStore {
	return &MemStore{
		queue:       make(map[int64]time.Time),
		matches:     make(map[int64]*storage.Match),
		messages:    make(map[int64]*storage.Message),
		transcripts: make(map[int64]*storage.Transcript),
	}
}

func (s *MemStore) UpsertQueueEntry(_ context.Context, user int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue[user] = now
	return nil
}

func (s *MemStore) DeleteQueueEntry(_ context.Context, user int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.queue, user)
	return nil
}

func (s *MemStore) HasQueueEntry(_ context.Context, user int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.queue[user]
	return ok, nil
}

func (s *MemStore) ClaimOldestWaiting(_ context.Context, exclude int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		oldest   int64
		oldestAt time.Time
		found    bool
	)
	for user, at := range s.queue {
		if user == exclude {
			continue
		}
		// ties broken by lower id to keep the pick stable
		if !found || at.Before(oldestAt) || (at.Equal(oldestAt) && user < oldest) {
			oldest, oldestAt, found = user, at, true
		}
	}
	if !found {
		return 0, false, nil
	}

	delete(s.queue, oldest)
	return oldest, true, nil
}

func (s *MemStore) CreateMatch(_ context.Context, userA, userB, firstTurn int64, lives int, now time.Time) (*storage.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMatchID++
	m := &storage.Match{
		ID:            s.nextMatchID,
		UserA:         userA,
		UserB:         userB,
		StartedAt:     now,
		LivesA:        lives,
		LivesB:        lives,
		TurnStartedAt: now,
		CurrentTurn:   firstTurn,
	}
	s.matches[m.ID] = m

	out := *m
	return &out, nil
}

func (s *MemStore) MatchByID(_ context.Context, match int64) (*storage.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[match]
	if !ok {
		return nil, storage.ErrMatchNotFound
	}

	out := *m
	return &out, nil
}

func (s *MemStore) ActiveMatchByUser(_ context.Context, user int64) (*storage.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *storage.Match
	for _, m := range s.matches {
		if m.TimedOut || !m.HasParticipant(user) {
			continue
		}
		if latest == nil || m.StartedAt.After(latest.StartedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, storage.ErrMatchNotFound
	}

	out := *latest
	return &out, nil
}

func (s *MemStore) ExpireUserMatches(_ context.Context, user int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.matches {
		if m.HasParticipant(user) {
			m.TimedOut = true
		}
	}
	return nil
}

func (s *MemStore) ExpireMatch(_ context.Context, match int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.matches[match]; ok {
		m.TimedOut = true
	}
	return nil
}

func (s *MemStore) ExpireDueMatch(_ context.Context, match int64, cutoff time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[match]
	if !ok || m.TimedOut || m.TurnStartedAt.After(cutoff) {
		return false, nil
	}

	m.TimedOut = true
	return true, nil
}

func (s *MemStore) AdvanceTurn(_ context.Context, match, sender, next int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[match]
	if !ok || m.TimedOut || m.CurrentTurn != sender {
		return false, nil
	}

	m.CurrentTurn = next
	m.TurnStartedAt = now
	return true, nil
}

func (s *MemStore) CreateMessage(_ context.Context, match, sender int64, body string, now time.Time) (*storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matches[match]; !ok {
		return nil, storage.ErrMatchNotFound
	}

	s.nextMessageID++
	m := &storage.Message{
		ID:        s.nextMessageID,
		MatchID:   match,
		SenderID:  sender,
		Body:      body,
		CreatedAt: now,
	}
	s.messages[m.ID] = m

	out := *m
	return &out, nil
}

func (s *MemStore) MessagesSince(_ context.Context, match int64, since time.Time) ([]storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.Message
	for _, m := range s.messages {
		if m.MatchID == match && !m.CreatedAt.Before(since) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (s *MemStore) MessageByID(_ context.Context, match, message int64) (*storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[message]
	if !ok || m.MatchID != match {
		return nil, storage.ErrMessageNotFound
	}

	out := *m
	return &out, nil
}

func (s *MemStore) UpdateMessageBody(_ context.Context, match, message, sender int64, body string) (*storage.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[message]
	if !ok || m.MatchID != match || m.SenderID != sender {
		return nil, storage.ErrMessageNotFound
	}

	m.Body = body
	m.Edited = true

	out := *m
	return &out, nil
}

func (s *MemStore) DeleteMessage(_ context.Context, match, message, sender int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[message]
	if !ok || m.MatchID != match || m.SenderID != sender {
		return false, nil
	}

	delete(s.messages, message)
	return true, nil
}

func (s *MemStore) TranscriptSavedAt(_ context.Context, match int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[match]
	if !ok {
		return time.Time{}, false, nil
	}
	return t.SavedAt, true, nil
}

func (s *MemStore) CreateTranscript(_ context.Context, match int64, payload []byte, now time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.transcripts[match]; ok {
		return existing.SavedAt, nil
	}

	s.transcripts[match] = &storage.Transcript{MatchID: match, Payload: payload, SavedAt: now}
	return now, nil
}

func (s *MemStore) TranscriptByMatch(_ context.Context, match int64) (*storage.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transcripts[match]
	if !ok {
		return nil, storage.ErrMatchNotFound
	}

	out := *t
	return &out, nil
}

// TranscriptCount reports how many transcripts are stored, for idempotence assertions
func (s *MemStore) TranscriptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.transcripts)
}

// ActiveMatchCount reports how many non-timed-out matches reference user
func (s *MemStore) ActiveMatchCount(user int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.matches {
		if !m.TimedOut && m.HasParticipant(user) {
			n++
		}
	}
	return n
}

// MessageCount reports how many messages are stored for match
func (s *MemStore) MessageCount(match int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.messages {
		if m.MatchID == match {
			n++
		}
	}
	return n
}
