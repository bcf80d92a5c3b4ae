// Package ranked implements the ranked matchmaking and turn-based chat
// session engine: a FIFO waiting queue, pairing with a single active match
// per user, a 15-second alternating turn clock evaluated lazily on every
// read and write, a per-match message log and a one-time transcript archive.
package ranked

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"campus-ranked/internal/storage"
)

const (
	// InitialLives is assigned to both participants on pairing. No operation
	// decrements them yet; they are carried and surfaced as inert counters.
	InitialLives = 3

	// MaxBodyLength caps a chat message body in characters
	MaxBodyLength = 2000
)

// Store is the persistence surface the engine runs on. It is implemented by
// *storage.Store; tests substitute an in-memory fake.
type Store interface {
	UpsertQueueEntry(ctx context.Context, user int64, now time.Time) error
	DeleteQueueEntry(ctx context.Context, user int64) error
	HasQueueEntry(ctx context.Context, user int64) (bool, error)
	ClaimOldestWaiting(ctx context.Context, exclude int64) (int64, bool, error)

	CreateMatch(ctx context.Context, userA, userB, firstTurn int64, lives int, now time.Time) (*storage.Match, error)
	MatchByID(ctx context.Context, match int64) (*storage.Match, error)
	ActiveMatchByUser(ctx context.Context, user int64) (*storage.Match, error)
	ExpireUserMatches(ctx context.Context, user int64) error
	ExpireMatch(ctx context.Context, match int64) error
	ExpireDueMatch(ctx context.Context, match int64, cutoff time.Time) (bool, error)
	AdvanceTurn(ctx context.Context, match, sender, next int64, now time.Time) (bool, error)

	CreateMessage(ctx context.Context, match, sender int64, body string, now time.Time) (*storage.Message, error)
	MessagesSince(ctx context.Context, match int64, since time.Time) ([]storage.Message, error)
	MessageByID(ctx context.Context, match, message int64) (*storage.Message, error)
	UpdateMessageBody(ctx context.Context, match, message, sender int64, body string) (*storage.Message, error)
	DeleteMessage(ctx context.Context, match, message, sender int64) (bool, error)

	TranscriptSavedAt(ctx context.Context, match int64) (time.Time, bool, error)
	CreateTranscript(ctx context.Context, match int64, payload []byte, now time.Time) (time.Time, error)
	TranscriptByMatch(ctx context.Context, match int64) (*storage.Transcript, error)
}

// UserDirectory resolves a user id to a display identity. User profiles live
// outside this engine; this is the only capability it consumes from them.
type UserDirectory interface {
	Resolve(ctx context.Context, user int64) (Identity, error)
}

// Service exposes the engine operations. It keeps no in-process state beyond
// its collaborators: all shared mutable state lives in the Store and every
// contended mutation is a single conditional write there.
type Service struct {
	logger    *zap.SugaredLogger
	store     Store
	directory UserDirectory

	now        func() time.Time
	turnWindow time.Duration
}

// NewService returns a Service over the provided store and user directory
func NewService(logger *zap.SugaredLogger, store Store, directory UserDirectory) *Service {
	return &Service{
		logger:     logger,
		store:      store,
		directory:  directory,
		now:        time.Now,
		turnWindow: TurnWindow,
	}
}

// EnqueueAndMatch pairs user with the longest-waiting compatible candidate or
// puts them into the waiting queue. Any still-active match of the caller is
// force-expired first, so a user can never hold two live sessions.
func (s *Service) EnqueueAndMatch(ctx context.Context, user int64) (*MatchState, error) {
	s.logger.Debugf("Matchmaking for user (id: %d)", user)

	now := s.now()

	if err := s.store.ExpireUserMatches(ctx, user); err != nil {
		return nil, err
	}
	if err := s.store.DeleteQueueEntry(ctx, user); err != nil {
		return nil, err
	}

	partner, found, err := s.store.ClaimOldestWaiting(ctx, user)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := s.store.UpsertQueueEntry(ctx, user, now); err != nil {
			return nil, err
		}
		return &MatchState{Status: StatusWaiting, ServerTime: now}, nil
	}

	first := user
	if rand.Intn(2) == 0 {
		first = partner
	}

	m, err := s.store.CreateMatch(ctx, partner, user, first, InitialLives, now)
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Matched users (%d, %d) into match %d", partner, user, m.ID)

	return s.matchState(ctx, m, user, now)
}

// CancelQueue removes the caller's queue entry. Calling it while not waiting
// is a no-op.
func (s *Service) CancelQueue(ctx context.Context, user int64) error {
	return s.store.DeleteQueueEntry(ctx, user)
}

// Status reports the caller's current ranked state: their active match if one
// survives lazy expiry, else "waiting" when queued, else "idle".
func (s *Service) Status(ctx context.Context, user int64) (*MatchState, error) {
	now := s.now()

	m, err := s.store.ActiveMatchByUser(ctx, user)
	switch {
	case err == nil:
		live, err := s.evaluate(ctx, m, now)
		if err != nil {
			return nil, err
		}
		if live {
			return s.matchState(ctx, m, user, now)
		}
	case errors.Is(err, storage.ErrMatchNotFound):
	default:
		return nil, err
	}

	waiting, err := s.store.HasQueueEntry(ctx, user)
	if err != nil {
		return nil, err
	}
	if waiting {
		return &MatchState{Status: StatusWaiting, ServerTime: now}, nil
	}

	return &MatchState{Status: StatusIdle, ServerTime: now}, nil
}

// Messages returns the match's full ordered message log together with the
// post-evaluation turn and timeout state
func (s *Service) Messages(ctx context.Context, match, user int64) (*MessagesPage, error) {
	now := s.now()

	m, err := s.participantMatch(ctx, match, user)
	if err != nil {
		return nil, err
	}

	if _, err := s.evaluate(ctx, m, now); err != nil {
		return nil, err
	}

	msgs, err := s.store.MessagesSince(ctx, m.ID, m.StartedAt)
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(msgs))
	identities := make(map[int64]Identity, 2)
	for _, msg := range msgs {
		sender, ok := identities[msg.SenderID]
		if !ok {
			sender, err = s.directory.Resolve(ctx, msg.SenderID)
			if err != nil {
				return nil, err
			}
			identities[msg.SenderID] = sender
		}
		views = append(views, messageView(&msg, sender))
	}

	return &MessagesPage{
		Messages:      views,
		TimedOut:      m.TimedOut,
		TurnStartedAt: m.TurnStartedAt,
		ServerTime:    now,
		IsMyTurn:      !m.TimedOut && m.CurrentTurn == user,
	}, nil
}

// Send appends a message to the match log and hands the turn to the other
// participant. The turn hand-off is a single conditional write, so of two
// participants racing for the same turn slot exactly one wins.
func (s *Service) Send(ctx context.Context, match, sender int64, body string) (*MessageView, error) {
	body, err := validateBody(body)
	if err != nil {
		return nil, err
	}

	now := s.now()

	m, err := s.participantMatch(ctx, match, sender)
	if err != nil {
		return nil, err
	}

	live, err := s.evaluate(ctx, m, now)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, ErrMatchEnded
	}

	ok, err := s.store.AdvanceTurn(ctx, m.ID, sender, m.Other(sender), now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost the claim: either the caller never held the turn or the
		// session ended between evaluation and the write
		current, err := s.store.MatchByID(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if current.TimedOut {
			return nil, ErrMatchEnded
		}
		return nil, ErrNotYourTurn
	}

	msg, err := s.store.CreateMessage(ctx, m.ID, sender, body, now)
	if err != nil {
		return nil, err
	}

	identity, err := s.directory.Resolve(ctx, sender)
	if err != nil {
		return nil, err
	}

	view := messageView(msg, identity)

	return &view, nil
}

// Update rewrites the body of the caller's own message and marks it edited.
// Edits never touch turn ownership.
func (s *Service) Update(ctx context.Context, match, message, user int64, body string) (*MessageView, error) {
	body, err := validateBody(body)
	if err != nil {
		return nil, err
	}

	if _, err := s.participantMatch(ctx, match, user); err != nil {
		return nil, err
	}

	msg, err := s.store.MessageByID(ctx, match, message)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != user {
		return nil, ErrNotMessageAuthor
	}

	updated, err := s.store.UpdateMessageBody(ctx, match, message, user, body)
	if err != nil {
		return nil, err
	}

	identity, err := s.directory.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	view := messageView(updated, identity)

	return &view, nil
}

// Delete removes the caller's own message outright. A miss on (message,
// match, caller) reports the message as not found whether the row is absent
// or owned by someone else.
func (s *Service) Delete(ctx context.Context, match, message, user int64) error {
	if _, err := s.participantMatch(ctx, match, user); err != nil {
		return err
	}

	ok, err := s.store.DeleteMessage(ctx, match, message, user)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrMessageNotFound
	}

	return nil
}

// SaveTranscript archives the match's message log exactly once and returns
// when the archive was made. Repeated calls return the original timestamp.
func (s *Service) SaveTranscript(ctx context.Context, match, user int64) (time.Time, error) {
	m, err := s.participantMatch(ctx, match, user)
	if err != nil {
		return time.Time{}, err
	}

	savedAt, found, err := s.store.TranscriptSavedAt(ctx, match)
	if err != nil {
		return time.Time{}, err
	}
	if found {
		return savedAt, nil
	}

	msgs, err := s.store.MessagesSince(ctx, m.ID, m.StartedAt)
	if err != nil {
		return time.Time{}, err
	}

	entries := make([]TranscriptEntry, 0, len(msgs))
	identities := make(map[int64]Identity, 2)
	for _, msg := range msgs {
		sender, ok := identities[msg.SenderID]
		if !ok {
			sender, err = s.directory.Resolve(ctx, msg.SenderID)
			if err != nil {
				return time.Time{}, err
			}
			identities[msg.SenderID] = sender
		}
		entries = append(entries, TranscriptEntry{
			ID:        msg.ID,
			Body:      msg.Body,
			CreatedAt: msg.CreatedAt,
			Sender:    sender,
		})
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return time.Time{}, err
	}

	return s.store.CreateTranscript(ctx, match, payload, s.now())
}

// Transcript returns the archived transcript of the match
func (s *Service) Transcript(ctx context.Context, match, user int64) (*TranscriptView, error) {
	if _, err := s.participantMatch(ctx, match, user); err != nil {
		return nil, err
	}

	t, err := s.store.TranscriptByMatch(ctx, match)
	if err != nil {
		return nil, err
	}

	var entries []TranscriptEntry
	if err := json.Unmarshal(t.Payload, &entries); err != nil {
		return nil, err
	}

	return &TranscriptView{MatchID: t.MatchID, Entries: entries, SavedAt: t.SavedAt}, nil
}

// MarkTimeout lets a participant end the session outside of message flow
func (s *Service) MarkTimeout(ctx context.Context, match, user int64) error {
	if _, err := s.participantMatch(ctx, match, user); err != nil {
		return err
	}

	return s.store.ExpireMatch(ctx, match)
}

// participantMatch loads the match and verifies user takes part in it
func (s *Service) participantMatch(ctx context.Context, match, user int64) (*storage.Match, error) {
	m, err := s.store.MatchByID(ctx, match)
	if err != nil {
		return nil, err
	}
	if !m.HasParticipant(user) {
		return nil, ErrNotParticipant
	}

	return m, nil
}

// evaluate runs the lazy turn-timer check against m, persisting the timed_out
// flag when the turn clock has run out, and reports whether the match is
// still live. m is updated in place to the post-evaluation state.
func (s *Service) evaluate(ctx context.Context, m *storage.Match, now time.Time) (bool, error) {
	if m.TimedOut {
		return false, nil
	}
	if !turnExpired(m.TurnStartedAt, now, s.turnWindow) {
		return true, nil
	}

	// another instance may have flipped the flag first; the outcome is the
	// same either way and the flag never reverts
	if _, err := s.store.ExpireDueMatch(ctx, m.ID, now.Add(-s.turnWindow)); err != nil {
		return false, err
	}
	m.TimedOut = true

	s.logger.Debugf("Match (id: %d) expired lazily", m.ID)

	return false, nil
}

// matchState composes the "matched" response for user from m
func (s *Service) matchState(ctx context.Context, m *storage.Match, user int64, now time.Time) (*MatchState, error) {
	partner, err := s.directory.Resolve(ctx, m.Other(user))
	if err != nil {
		return nil, err
	}

	lives := &Lives{Me: m.LivesA, Partner: m.LivesB}
	if user == m.UserB {
		lives = &Lives{Me: m.LivesB, Partner: m.LivesA}
	}

	return &MatchState{
		Status:        StatusMatched,
		MatchID:       m.ID,
		Partner:       &partner,
		StartedAt:     m.StartedAt,
		Lives:         lives,
		TurnStartedAt: m.TurnStartedAt,
		ServerTime:    now,
		IsMyTurn:      m.CurrentTurn == user,
	}, nil
}

func messageView(m *storage.Message, sender Identity) MessageView {
	return MessageView{
		ID:        m.ID,
		MatchID:   m.MatchID,
		Sender:    sender,
		Body:      m.Body,
		Edited:    m.Edited,
		CreatedAt: m.CreatedAt,
	}
}

// validateBody trims body and enforces the non-empty and length rules shared
// by Send and Update
func validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if len(body) == 0 {
		return "", ErrEmptyBody
	}
	if len([]rune(body)) > MaxBodyLength {
		return "", ErrBodyTooLong
	}

	return body, nil
}
