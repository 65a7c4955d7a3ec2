package node

import (
	"context"
	"encoding/base64"
	"net"

	"localchat.dev/node/wire"
)

func decodeChunkData(b64 string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(b64)
}

func encodeChunkData(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// destinations returns the fan-out set for a broadcast: unicast to
// every known peer's last observed address, plus the LAN broadcast
// address on the room's base port. The union converges with high
// probability on a local network while limiting duplication (§4.8).
func (s *session) destinations() []*net.UDPAddr {
	peers := s.peers.Snapshot()
	dsts := make([]*net.UDPAddr, 0, len(peers)+1)
	for _, p := range peers {
		if p.Addr != nil {
			dsts = append(dsts, p.Addr)
		}
	}
	dsts = append(dsts, &net.UDPAddr{IP: net.ParseIP(broadcastAddr), Port: s.port})
	return dsts
}

// broadcastEnvelope builds and fans out one envelope with a fresh
// message-id.
func (s *session) broadcastEnvelope(t wire.Type, content any) {
	s.broadcastEnvelopeWithID(t, newMessageID(), nowMillis(), content)
}

// broadcastEnvelopeWithID is broadcastEnvelope with an explicit
// message-id and timestamp, used when the caller (e.g. sendMessage) has
// already minted the id for its own bookkeeping.
func (s *session) broadcastEnvelopeWithID(t wire.Type, messageID string, timestamp int64, content any) {
	env := wire.Envelope{
		Type:        t,
		MessageID:   messageID,
		PeerID:      s.peerID,
		DisplayName: s.displayName,
		Timestamp:   timestamp,
	}
	data, err := wire.Encode(env, content, s.channel)
	if err != nil {
		if s.logger != nil {
			s.logger.Error.Println("node: encode error:", err)
		}
		return
	}
	for _, dst := range s.destinations() {
		s.transport.Send(data, dst)
	}
}

// sendEnvelopeTo unicasts one envelope, reusing an existing message-id
// and timestamp -- used by history replay, which must preserve the
// original message's identity so the requester's dedup cache treats it
// like any other message.
func (s *session) sendEnvelopeTo(dst *net.UDPAddr, t wire.Type, messageID string, timestamp int64, content any) {
	env := wire.Envelope{
		Type:        t,
		MessageID:   messageID,
		PeerID:      s.peerID,
		DisplayName: s.displayName,
		Timestamp:   timestamp,
	}
	data, err := wire.Encode(env, content, s.channel)
	if err != nil {
		if s.logger != nil {
			s.logger.Error.Println("node: encode error:", err)
		}
		return
	}
	s.transport.Send(data, dst)
}

// streamChunk broadcasts a single file_chunk envelope with a fresh
// message-id (each chunk is its own dedup-tracked datagram).
func (s *session) streamChunk(fileID string, index int, chunkData string) {
	s.broadcastEnvelope(wire.TypeFileChunk, wire.FileChunkContent{
		FileID:     fileID,
		ChunkIndex: index,
		ChunkData:  chunkData,
	})
}

// streamChunkTo unicasts a single file_chunk envelope to one destination
// (used by history replay).
func (s *session) streamChunkTo(dst *net.UDPAddr, fileID string, index int, chunkData string) {
	s.sendEnvelopeTo(dst, wire.TypeFileChunk, newMessageID(), nowMillis(), wire.FileChunkContent{
		FileID:     fileID,
		ChunkIndex: index,
		ChunkData:  chunkData,
	})
}

// streamFileChunks paces and broadcasts every chunk of data for fileID.
func (s *session) streamFileChunks(fileID string, data []byte) {
	s.sender.send(context.Background(), data, func(index int, chunkData string) {
		s.streamChunk(fileID, index, chunkData)
	})
}

// streamFileChunksTo paces and unicasts every chunk of data for fileID
// to dst, used when replaying history.
func (s *session) streamFileChunksTo(dst *net.UDPAddr, fileID string, data []byte) {
	s.sender.send(context.Background(), data, func(index int, chunkData string) {
		s.streamChunkTo(dst, fileID, index, chunkData)
	})
}

// sendMessage assigns a fresh message-id, appends to the local log with
// full file payloads, broadcasts the announcing envelope (metadata only
// for files), and kicks off paced chunk streaming for each file.
func (s *session) sendMessage(parts []wire.Part, files []FilePayload) ChatMessage {
	metas := make([]wire.FileMeta, 0, len(files))
	for _, f := range files {
		meta := wire.FileMeta{
			ID:          f.FileID,
			Name:        f.Name,
			Size:        int64(len(f.Data)),
			TotalChunks: totalChunks(int64(len(f.Data))),
		}
		metas = append(metas, meta)
		s.files.putComplete(FilePayload{FileID: f.FileID, Name: f.Name, Data: f.Data})
	}

	msg := ChatMessage{
		MessageID: newMessageID(),
		Sender:    s.displayName,
		Timestamp: nowMillis(),
		Structure: parts,
		Files:     metas,
	}
	s.log.append(msg)

	content := wire.MessageContent{Structure: parts, Files: metas}
	s.broadcastEnvelopeWithID(wire.TypeMessage, msg.MessageID, msg.Timestamp, content)

	for _, f := range files {
		go s.streamFileChunks(f.FileID, f.Data)
	}

	return msg
}
