package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrCrossedBook    = errors.New("crossed book")
	ErrMalformedEvent = errors.New("malformed depth event")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrPipelineClosed = errors.New("pipeline closed")
)
