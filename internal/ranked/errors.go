package ranked

import "errors"

var (
	ErrNotParticipant   = errors.New("caller is not part of this match")
	ErrNotMessageAuthor = errors.New("caller is not the message author")
	ErrNotYourTurn      = errors.New("caller does not hold the turn")
	ErrMatchEnded       = errors.New("match has ended")
	ErrEmptyBody        = errors.New("message body is empty")
	ErrBodyTooLong      = errors.New("message body is too long")
)
