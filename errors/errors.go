package errors

import "fmt"

var (
	// ErrUnauthenticated marks chat operations attempted before identity resolution.
	// Handlers drop these silently; the error exists for callers that do have
	// a response channel (REST endpoints).
	ErrUnauthenticated = fmt.Errorf("identity not resolved")

	// ErrStoreUnavailable wraps any persistence or history-read failure.
	ErrStoreUnavailable = fmt.Errorf("message store unavailable")

	// ErrNotAMember covers registry inconsistencies such as leaving a room
	// the connection never joined. Never fatal.
	ErrNotAMember = fmt.Errorf("connection is not a room member")

	ErrSlowConsumer       = fmt.Errorf("outbound buffer full")
	ErrUserAlreadyExists  = fmt.Errorf("username already taken")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)
