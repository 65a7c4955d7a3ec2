// Package wire defines the on-wire UDP envelope (UTF-8 JSON) and the
// codec that seals/opens its content under a room.Channel.
package wire

import (
	"encoding/json"

	"localchat.dev/node/room"
)

// Type identifies the envelope's handler.
type Type string

const (
	TypeJoin           Type = "join"
	TypeMessage        Type = "message"
	TypeFileChunk      Type = "file_chunk"
	TypeAck            Type = "ack"
	TypeHistoryRequest Type = "history_request"
	TypeStatusRequest  Type = "status_request"
	TypeLeave          Type = "leave"
)

// Envelope is the wire format: every datagram is one JSON object with
// these required fields, plus at most one of Content (plaintext, present
// before sealing) or Encrypted (present after sealing). Content-less
// types such as join, leave and history_request carry neither.
type Envelope struct {
	Type        Type            `json:"type"`
	MessageID   string          `json:"messageId"`
	PeerID      string          `json:"peerId"`
	DisplayName string          `json:"displayName"`
	Timestamp   int64           `json:"timestamp"`
	Content     json.RawMessage `json:"content,omitempty"`
	Encrypted   *room.Sealed    `json:"encrypted,omitempty"`
}

// Part is one element of a chat message's structure: either a text run
// or a reference to a file announced in the same message.
type Part struct {
	Type    string `json:"type"` // "text" | "file"
	Content string `json:"content,omitempty"`
	ID      string `json:"id,omitempty"`
}

const (
	PartText = "text"
	PartFile = "file"
)

// FileMeta describes a file announced alongside a message's structure.
type FileMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"totalChunks"`
}

// MessageContent is the content shape for TypeMessage.
type MessageContent struct {
	Structure []Part     `json:"structure"`
	Files     []FileMeta `json:"files"`
}

// FileChunkContent is the content shape for TypeFileChunk. ChunkData is
// base64 text on the wire, per the preserved wire contract.
type FileChunkContent struct {
	FileID     string `json:"fileId"`
	ChunkIndex int    `json:"chunkIndex"`
	ChunkData  string `json:"chunkData"`
}
