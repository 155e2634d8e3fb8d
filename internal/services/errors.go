package services

import "errors"

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is returned by every service operation that fails for a reason the
// caller can act on. Msg is safe to show to API clients.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == e.Msg
}

var (
	ErrDuplicateEmail       = &Error{Kind: KindValidation, Msg: "User with this email already exists"}
	ErrInvalidCredentials   = &Error{Kind: KindAuth, Msg: "Invalid email or password"}
	ErrInvalidIdentityToken = &Error{Kind: KindAuth, Msg: "Invalid Google token"}
	ErrInvalidCredential    = &Error{Kind: KindAuth, Msg: "Invalid token"}
	ErrExpiredCredential    = &Error{Kind: KindAuth, Msg: "Token expired"}
	ErrForbidden            = &Error{Kind: KindForbidden, Msg: "Access denied"}
	ErrUserNotFound         = &Error{Kind: KindNotFound, Msg: "User not found"}
	ErrAppointmentNotFound  = &Error{Kind: KindNotFound, Msg: "Appointment not found"}
)

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// wrap attaches a cause to a sentinel without losing errors.Is on the sentinel.
func wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Msg: sentinel.Msg, Err: cause}
}

// KindOf reports the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
