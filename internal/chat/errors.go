package chat

import (
	"errors"

	"groupchat-service/internal/repositories"
)

var (
	ErrNotAMember    = errors.New("user is not a member of this group")
	ErrForbidden     = errors.New("only the group creator can change membership")
	ErrAlreadyMember = errors.New("user is already a member of this group")
	ErrNotFound      = errors.New("not found")
	ErrEmptyMessage  = errors.New("message text is empty")
	ErrEmptyName     = errors.New("group name is empty")
	ErrInvalidUserID = errors.New("user id must be positive")
	ErrNotConnected  = errors.New("connection is not registered")
)

// translate maps storage errors onto the domain taxonomy. Anything it does
// not recognise is returned unchanged and treated as internal.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrGroupNotFound), errors.Is(err, repositories.ErrMessageNotFound):
		return ErrNotFound
	case errors.Is(err, repositories.ErrNotMember):
		return ErrNotAMember
	case errors.Is(err, repositories.ErrAlreadyMember):
		return ErrAlreadyMember
	default:
		return err
	}
}

// IsBadInput reports errors caused by the request rather than the state.
func IsBadInput(err error) bool {
	return errors.Is(err, ErrEmptyMessage) || errors.Is(err, ErrEmptyName) || errors.Is(err, ErrInvalidUserID)
}
