package inventory

import "errors"

var (
	// ErrNotConnected means no connection existed and dialing failed.
	ErrNotConnected = errors.New("inventory: not connected")
	// ErrSendFailed means the frame could not be written.
	ErrSendFailed = errors.New("inventory: send failed")
	// ErrReplyTimeout means the command was written but no reply arrived.
	ErrReplyTimeout = errors.New("inventory: reply timeout")
	// ErrRejected means the remote answered with status "error".
	ErrRejected = errors.New("inventory: command rejected")
	// ErrClosed is returned after Close or once Run has stopped.
	ErrClosed = errors.New("inventory: link closed")
)

// IsUndelivered reports whether err guarantees the command never reached
// the remote service, which makes a later resend safe.
func IsUndelivered(err error) bool {
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrSendFailed) ||
		errors.Is(err, ErrClosed)
}
