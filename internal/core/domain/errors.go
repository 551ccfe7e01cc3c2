package domain

import "errors"

var (
	ErrStreamNotFound     = errors.New("stream not found")
	ErrNoMediaTracks      = errors.New("no local media tracks available")
	ErrNoPeerConnection   = errors.New("no peer connection established")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrDestinationActive  = errors.New("destination already active")
)
