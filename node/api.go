package node

import (
	"sync"

	"localchat.dev/node/logging"
	"localchat.dev/node/wire"
)

// eventBufferSize bounds the asynchronous event channel so a slow UI
// cannot stall the receiver goroutine indefinitely; emit() drops events
// past this if nothing is draining.
const eventBufferSize = 256

// Node is the boundary API: request/response methods plus an
// asynchronous event stream (§6.4). It owns the current session's
// lifecycle; join constructs a new session, leave drops it. save-file-
// dialog is not implemented here -- it is delegated to the OS via the
// out-of-scope UI layer, per §1.
type Node struct {
	mu     sync.Mutex
	sess   *session
	logger *logging.Logger
	events chan Event
}

// New constructs a Node with no active session. level is one of the
// logging.Level* constants; devMode raises it to Debug regardless.
func New(level int, devMode bool, logPrefix string) *Node {
	if devMode {
		level = logging.LevelDebug
	}
	return &Node{
		logger: logging.New(level, logPrefix),
		events: make(chan Event, eventBufferSize),
	}
}

// Events returns the asynchronous event stream toward the UI.
func (n *Node) Events() <-chan Event { return n.events }

// JoinRoom normalizes and joins room, returning the bound port.
func (n *Node) JoinRoom(roomName, userName string) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sess != nil {
		n.sess.leave()
		n.sess = nil
	}

	sess, err := joinSession(roomName, userName, n.events, n.logger)
	if err != nil {
		return 0, err
	}
	n.sess = sess
	return sess.port, nil
}

// SendMessage sends a chat message with optional file payloads. Returns
// NotInRoom if no session is active.
func (n *Node) SendMessage(parts []wire.Part, files []FilePayload) (ChatMessage, error) {
	n.mu.Lock()
	sess := n.sess
	n.mu.Unlock()

	if sess == nil {
		return ChatMessage{}, ErrNotInRoom
	}
	return sess.sendMessage(parts, files), nil
}

// SendFileChunk broadcasts one file_chunk envelope directly. Exposed for
// callers that want to stream chunks themselves (e.g. a UI reading a
// large file incrementally) rather than relying on SendMessage's
// automatic paced streaming.
func (n *Node) SendFileChunk(fileID string, chunkIndex int, chunkData []byte) error {
	n.mu.Lock()
	sess := n.sess
	n.mu.Unlock()

	if sess == nil {
		return ErrNotInRoom
	}
	sess.streamChunk(fileID, chunkIndex, encodeChunkData(chunkData))
	return nil
}

// LeaveRoom broadcasts leave, drains, and tears down session state.
func (n *Node) LeaveRoom() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sess == nil {
		return nil
	}
	n.sess.leave()
	n.sess = nil
	return nil
}

// GetPeers returns a snapshot of currently known peers.
func (n *Node) GetPeers() []PeerInfo {
	n.mu.Lock()
	sess := n.sess
	n.mu.Unlock()

	if sess == nil {
		return nil
	}
	records := sess.peers.Snapshot()
	out := make([]PeerInfo, 0, len(records))
	for _, r := range records {
		out = append(out, PeerInfo{PeerID: r.PeerID, DisplayName: r.DisplayName, LastSeen: r.LastSeen})
	}
	return out
}
