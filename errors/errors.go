package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrDuplicateName   = fmt.Errorf("username already registered")
	ErrBanned          = fmt.Errorf("username is banned")
	ErrUnknownUser     = fmt.Errorf("username not registered")
	ErrHandshake       = fmt.Errorf("handshake failed")
	ErrMalformedPacket = fmt.Errorf("malformed packet")
	ErrStaleSender     = fmt.Errorf("frame from unregistered or stale sender")
)

// ArbitrationDenied is recoverable: the caller learns who currently
// holds the presenter slot and may retry after a release.
type ArbitrationDenied struct {
	HeldBy string
}

func (e ArbitrationDenied) Error() string {
	return fmt.Sprintf("presenter slot held by %s", e.HeldBy)
}
