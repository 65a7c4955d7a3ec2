// Package node is the session controller, message router, history
// protocol, file pipeline, and boundary API for one joined room. It is
// the top of the data flow described in the package overview: the
// boundary API talks to the Session, which talks to wire/room/conn.
package node

import (
	"time"

	"localchat.dev/node/wire"
)

// ChatMessage is one entry in the in-memory log. Never mutated after
// insertion, never persisted across sessions.
type ChatMessage struct {
	MessageID   string
	Sender      string
	Timestamp   int64
	Structure   []wire.Part
	Files       []wire.FileMeta
}

// FilePayload is a complete file's bytes, kept either because this node
// is the sender (retained for history replay) or because this node
// finished reassembling it from chunks. Discarded on leave.
type FilePayload struct {
	FileID string
	Name   string
	Data   []byte
}

// PeerInfo is the boundary API's view of a peer-table record.
type PeerInfo struct {
	PeerID      string
	DisplayName string
	LastSeen    time.Time
}

// Event is the asynchronous event surface toward the UI (§6.4).
type Event interface{ isEvent() }

// NewMessageEvent fires when a received chat message is appended to the
// log. A local send emits no event; SendMessage returns the message to
// its caller instead.
type NewMessageEvent struct{ Message ChatMessage }

// FileChunkReceivedEvent forwards one arrived chunk so the UI can drive
// reassembly progress; the core also reassembles independently.
type FileChunkReceivedEvent struct {
	FileID     string
	ChunkIndex int
	Total      int
}

// FileCompleteEvent fires once every chunk for a file has arrived and
// the payload has been reassembled.
type FileCompleteEvent struct {
	FileID string
	Name   string
	Data   []byte
}

// HistoryReceivedEvent is reserved: this revision transmits history as
// individual NewMessageEvents, so a UI synthesizes this event itself by
// observing the tail of an initial burst after join.
type HistoryReceivedEvent struct{ Messages []ChatMessage }

// ErrorEvent carries a non-fatal network error notification.
type ErrorEvent struct{ Err error }

// PeerTimedOutEvent fires once per genuine peer-table eviction.
type PeerTimedOutEvent struct {
	PeerID      string
	DisplayName string
}

func (NewMessageEvent) isEvent()        {}
func (FileChunkReceivedEvent) isEvent() {}
func (FileCompleteEvent) isEvent()      {}
func (HistoryReceivedEvent) isEvent()   {}
func (ErrorEvent) isEvent()             {}
func (PeerTimedOutEvent) isEvent()      {}
