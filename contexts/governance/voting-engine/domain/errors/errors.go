package errors

import "errors"

var (
	ErrNotAuthenticated       = errors.New("voter is not authenticated")
	ErrNotMember              = errors.New("voting is limited to cooperative members")
	ErrOwnersOnly             = errors.New("only plot owners may vote")
	ErrVotingNotFound         = errors.New("voting not found")
	ErrVotingClosed           = errors.New("voting is closed")
	ErrAlreadyVoted           = errors.New("voter has already voted")
	ErrInvalidSelection       = errors.New("invalid option selection")
	ErrInvalidVotingInput     = errors.New("invalid voting input")
	ErrForbidden              = errors.New("action is not permitted for this role")
	ErrInvalidTransition      = errors.New("invalid voting state transition")
	ErrConflict               = errors.New("voting conflict")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyConflict    = errors.New("idempotency key conflict")
	ErrRosterUnavailable      = errors.New("member roster unavailable")
	ErrNotificationFailed     = errors.New("completion notification failed")
)

// ReasonCode maps a cast rejection to its stable reason code. Anything that
// is not a rejection maps to "".
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrOwnersOnly):
		return "owners_only"
	case errors.Is(err, ErrVotingNotFound):
		return "voting_not_found"
	case errors.Is(err, ErrVotingClosed):
		return "voting_closed"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrInvalidSelection):
		return "invalid_selection"
	default:
		return ""
	}
}

// IsRejection reports whether err is an expected, user-facing rejection that
// must never be retried.
func IsRejection(err error) bool {
	return ReasonCode(err) != ""
}
