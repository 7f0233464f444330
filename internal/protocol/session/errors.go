package session

import "errors"

var (
	ErrSessionClosed  = errors.New("session: closed")
	ErrShutdown       = errors.New("session: shut down for sending")
	ErrReceiverActive = errors.New("session: receiver already activated")
	ErrNilCallback    = errors.New("session: nil packet callback")
	ErrReceiveFailed  = errors.New("session: receive failed")
	ErrSendFailed     = errors.New("session: send failed")
	ErrActivation     = errors.New("session: receiver activation failed")
)
