package blockstream

import "errors"

var (
	ErrAllocationTimeout = errors.New("timed out allocating audio block")
	ErrConfig            = errors.New("transmit path configuration failed")
	ErrTransmit          = errors.New("transmit failed")
	ErrSessionActive     = errors.New("a playback session is already active")
	ErrInvalidTransition = errors.New("invalid trigger transition")
)
