package node

import "errors"

// Error taxonomy (§7). Everything user-triggered is surfaced as one of
// these via a boundary API response; everything asynchronous degrades to
// a dropped datagram and a log entry instead.
var (
	ErrInvalidRoom   = errors.New("node: invalid room name")
	ErrBindExhausted = errors.New("node: bind exhausted")
	ErrNotInRoom     = errors.New("node: not in room")
)
