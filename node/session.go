package node

/* Data flow
 *
 * UI -> Node (boundary API) -> session -> wire codec -> room channel -> conn.Transport -> wire
 *
 * Inbound reverses the path: conn.Transport -> wire codec -> peertable/dedup
 * filtering -> session router -> UI events.
 *
 * The session owns the peer table, the message log, the dedup cache and
 * the file-reassembly buffers exclusively. The transport owns the
 * socket. The room.Channel owns the derived key. Everything here is
 * reached either from the single receiver goroutine or from a boundary
 * API call; both paths only ever touch state through the already
 * lock-protected peertable/dedup/log/fileStore types, so no additional
 * session-wide lock is needed except to guard the lifecycle pointer
 * itself (see Node in api.go).
 */

import (
	"net"
	"time"

	"localchat.dev/node/conn"
	"localchat.dev/node/dedup"
	"localchat.dev/node/logging"
	"localchat.dev/node/peertable"
	"localchat.dev/node/room"
	"localchat.dev/node/wire"
)

const historyRequestDelay = 500 * time.Millisecond
const leaveDrainDelay = 100 * time.Millisecond

const broadcastAddr = "255.255.255.255"

type session struct {
	roomName    string
	peerID      string
	displayName string
	port        int

	transport *conn.Transport
	channel   *room.Channel

	peers *peertable.Table
	dedup *dedup.Cache
	log   *messageLog
	files *fileStore

	sender *chunkSender

	events chan<- Event
	logger *logging.Logger

	stop   chan struct{}
	stopWG stopWaiter
}

// stopWaiter tracks the receiver goroutine so leave can wait for it to
// actually exit after closing the socket, which unblocks its pending
// Receive, and before the rest of the session state is torn down.
type stopWaiter struct {
	done chan struct{}
}

func newStopWaiter() stopWaiter { return stopWaiter{done: make(chan struct{})} }

func (w stopWaiter) markDone() { close(w.done) }

func (w stopWaiter) wait() { <-w.done }

// joinSession constructs and starts a new session for roomName. It
// binds the socket, enables broadcast, and kicks off the receive loop
// and the initial join/history-request broadcasts. The caller holds
// Node's lifecycle lock while calling this.
func joinSession(roomName, userName string, events chan<- Event, logger *logging.Logger) (*session, error) {
	normalized, err := room.Normalize(roomName)
	if err != nil {
		return nil, ErrInvalidRoom
	}

	channel, err := room.NewChannel(normalized, logger)
	if err != nil {
		return nil, err
	}

	basePort := room.Port(normalized)
	transport, err := conn.Bind(basePort, logger)
	if err != nil {
		return nil, ErrBindExhausted
	}

	peerID := newPeerID()
	s := &session{
		roomName:    normalized,
		peerID:      peerID,
		displayName: resolveDisplayName(userName),
		port:        transport.Port(),
		transport:   transport,
		channel:     channel,
		dedup:       dedup.New(),
		log:         newMessageLog(),
		files:       newFileStore(),
		sender:      newChunkSender(),
		events:      events,
		logger:      logger,
		stop:        make(chan struct{}),
		stopWG:      newStopWaiter(),
	}
	s.peers = peertable.New(peerID, logger, s.onPeerEvicted)

	go s.receiveLoop()

	s.broadcastEnvelope(wire.TypeJoin, nil)

	go func() {
		select {
		case <-time.After(historyRequestDelay):
			s.broadcastEnvelope(wire.TypeHistoryRequest, nil)
		case <-s.stop:
		}
	}()

	return s, nil
}

func (s *session) onPeerEvicted(ev peertable.EvictedEvent) {
	s.emit(PeerTimedOutEvent{PeerID: ev.PeerID, DisplayName: ev.DisplayName})
}

func (s *session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// UI isn't draining the event channel fast enough; dropping an
		// event here is preferable to blocking the receiver loop.
		if s.logger != nil {
			s.logger.Error.Println("node: event channel full, dropping event")
		}
	}
}

// leave broadcasts a leave notice, drains briefly, then tears down all
// session state. Safe to call once.
func (s *session) leave() {
	s.broadcastEnvelope(wire.TypeLeave, nil)
	time.Sleep(leaveDrainDelay)

	close(s.stop)
	s.transport.Close()
	s.stopWG.wait()

	s.peers.Close()
	s.files.reset()
	s.log.reset()
}

// receiveLoop is the single task reading the socket; it is the only
// caller of Transport.Receive.
func (s *session) receiveLoop() {
	defer s.stopWG.markDone()

	buf := make([]byte, 65535)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		dgram, err := s.transport.Receive(buf)
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			if s.logger != nil {
				s.logger.Error.Println("node: receive error:", err)
			}
			continue
		}

		payload := make([]byte, len(dgram.Payload))
		copy(payload, dgram.Payload)
		s.handleDatagram(payload, dgram.Source)
	}
}

// handleDatagram implements the pre-router steps (dedup, peer-table
// refresh, self-origin rejection) and then dispatches to the router.
func (s *session) handleDatagram(payload []byte, src *net.UDPAddr) {
	env, err := wire.DecodeEnvelope(payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug.Println("node: dropping undecodable datagram:", err)
		}
		return
	}

	// Dedup is checked against the plaintext envelope id before the
	// sealed content is opened (§4.6), so a duplicate or looped-back
	// self-broadcast never pays for decryption.
	if s.dedup.SeenOrAdd(env.MessageID) {
		return
	}

	// Invariant: an envelope whose peerId equals the local peer-id is
	// never dispatched. Checked here, also on the plaintext envelope,
	// so a node's own broadcast looping back never pays for decryption
	// either.
	if env.PeerID == s.peerID {
		return
	}

	env, err = wire.OpenContent(env, s.channel)
	if err != nil {
		// AeadFailure: log and drop, never fatal.
		if s.logger != nil {
			s.logger.Debug.Println("node: dropping undecodable datagram:", err)
		}
		return
	}

	s.peers.Touch(env.PeerID, src, env.DisplayName, time.Now())

	s.route(env, src)
}

// route is the message router: dispatch by type.
func (s *session) route(env wire.Envelope, src *net.UDPAddr) {
	switch env.Type {
	case wire.TypeJoin:
		if s.logger != nil {
			s.logger.Debug.Println("node: join from", env.DisplayName)
		}
		// No reply: late joiners request history themselves.

	case wire.TypeHistoryRequest:
		s.replayHistoryTo(src)

	case wire.TypeMessage:
		s.handleIncomingMessage(env)

	case wire.TypeFileChunk:
		s.handleIncomingChunk(env)

	case wire.TypeLeave:
		s.peers.Remove(env.PeerID)

	case wire.TypeAck, wire.TypeStatusRequest:
		// Reserved; no-op in this revision.

	default:
		if s.logger != nil {
			s.logger.Debug.Println("node: unknown envelope type", env.Type)
		}
	}
}

func (s *session) handleIncomingMessage(env wire.Envelope) {
	var content wire.MessageContent
	if err := wire.DecodeContent(env, &content); err != nil {
		if s.logger != nil {
			s.logger.Debug.Println("node: malformed message content:", err)
		}
		return
	}

	for _, meta := range content.Files {
		s.files.announce(meta)
	}

	msg := ChatMessage{
		MessageID: env.MessageID,
		Sender:    env.DisplayName,
		Timestamp: env.Timestamp,
		Structure: content.Structure,
		Files:     content.Files,
	}
	s.log.append(msg)
	s.emit(NewMessageEvent{Message: msg})
}

func (s *session) handleIncomingChunk(env wire.Envelope) {
	var content wire.FileChunkContent
	if err := wire.DecodeContent(env, &content); err != nil {
		if s.logger != nil {
			s.logger.Debug.Println("node: malformed chunk content:", err)
		}
		return
	}

	data, err := decodeChunkData(content.ChunkData)
	if err != nil {
		if s.logger != nil {
			s.logger.Debug.Println("node: malformed chunk payload:", err)
		}
		return
	}

	payload, total, completed, ok := s.files.chunk(content.FileID, content.ChunkIndex, data)
	if !ok {
		// Unknown file-id: discarded, per §4.9.
		return
	}

	s.emit(FileChunkReceivedEvent{FileID: content.FileID, ChunkIndex: content.ChunkIndex, Total: total})
	if completed {
		s.emit(FileCompleteEvent{FileID: payload.FileID, Name: payload.Name, Data: payload.Data})
	}
}

// replayHistoryTo implements the history protocol's responder side: one
// message envelope per logged entry, followed immediately by that
// entry's file chunks (if any), unicast to the requester.
func (s *session) replayHistoryTo(dst *net.UDPAddr) {
	for _, msg := range s.log.snapshot() {
		content := wire.MessageContent{Structure: msg.Structure, Files: msg.Files}
		s.sendEnvelopeTo(dst, wire.TypeMessage, msg.MessageID, msg.Timestamp, content)

		for _, meta := range msg.Files {
			payload, ok := s.files.get(meta.ID)
			if !ok {
				continue // not retained locally (lost chunks); skip per §4.9 failure mode
			}
			s.streamFileChunksTo(dst, meta.ID, payload.Data)
		}
	}
}

