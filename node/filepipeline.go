package node

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"localchat.dev/node/wire"
)

// ChunkSize is the number of raw file bytes carried by one file_chunk
// envelope before base64 encoding. Chosen so the base64 text and JSON
// framing stay comfortably under typical UDP datagram limits on a LAN.
const ChunkSize = 60000

// chunkPacingInterval is the inter-send delay between outbound chunks,
// implemented as a token-bucket limiter (one token per interval, burst
// of one) instead of a bare time.Sleep.
const chunkPacingInterval = 5 * time.Millisecond

// totalChunks computes ceil(size / ChunkSize).
func totalChunks(size int64) int {
	if size == 0 {
		return 0
	}
	n := size / ChunkSize
	if size%ChunkSize != 0 {
		n++
	}
	return int(n)
}

// splitChunks slices raw file bytes into ChunkSize-sized pieces.
func splitChunks(data []byte) [][]byte {
	n := totalChunks(int64(len(data)))
	chunks := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[start:end])
	}
	return chunks
}

// chunkSender paces the emission of one file's chunks. No per-chunk
// acknowledgement and no retry: delivery is best-effort, dedup-protected
// and reassembly-verified entirely by the receiver.
type chunkSender struct {
	limiter *rate.Limiter
}

func newChunkSender() *chunkSender {
	return &chunkSender{limiter: rate.NewLimiter(rate.Every(chunkPacingInterval), 1)}
}

// send invokes emit(index, base64Chunk) for each chunk in order, paced
// by the limiter. The context is only used to bound the pacing wait; it
// is not a cancellation contract toward the UI (the core exposes none).
func (s *chunkSender) send(ctx context.Context, data []byte, emit func(index int, chunkData string)) {
	for i, chunk := range splitChunks(data) {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		emit(i, base64.StdEncoding.EncodeToString(chunk))
	}
}

// reassembly buffers a file's chunks as they arrive out of order and
// detects completion.
type reassembly struct {
	name        string
	size        int64
	totalChunks int
	chunks      [][]byte
	have        int
}

func newReassembly(meta wire.FileMeta) *reassembly {
	return &reassembly{
		name:        meta.Name,
		size:        meta.Size,
		totalChunks: meta.TotalChunks,
		chunks:      make([][]byte, meta.TotalChunks),
	}
}

// place stores a chunk at its index and reports whether the file is now
// complete. Chunks for unknown file-ids never reach this type; the
// caller discards those before calling place.
func (r *reassembly) place(index int, data []byte) (complete bool) {
	if index < 0 || index >= len(r.chunks) {
		return false
	}
	if r.chunks[index] == nil {
		r.have++
	}
	r.chunks[index] = data
	return r.have == r.totalChunks
}

func (r *reassembly) concat() []byte {
	out := make([]byte, 0, r.size)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}

// fileStore holds complete file payloads, whether retained by the
// original sender for history replay or produced locally by successful
// reassembly -- either way this node can now replay chunks to a late
// joiner. Pending (incomplete) reassemblies live here too, under a
// separate map, and are simply never replayable.
type fileStore struct {
	mu       sync.Mutex
	complete map[string]FilePayload
	pending  map[string]*reassembly
}

func newFileStore() *fileStore {
	return &fileStore{
		complete: make(map[string]FilePayload),
		pending:  make(map[string]*reassembly),
	}
}

func (s *fileStore) putComplete(p FilePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete[p.FileID] = p
	delete(s.pending, p.FileID)
}

func (s *fileStore) get(fileID string) (FilePayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.complete[fileID]
	return p, ok
}

// announce pre-allocates a reassembly record for an inbound file
// metadata announcement. A zero-length file (TotalChunks == 0) is
// immediately complete.
func (s *fileStore) announce(meta wire.FileMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.complete[meta.ID]; ok {
		return
	}
	if meta.TotalChunks == 0 {
		s.complete[meta.ID] = FilePayload{FileID: meta.ID, Name: meta.Name, Data: []byte{}}
		return
	}
	if _, ok := s.pending[meta.ID]; !ok {
		s.pending[meta.ID] = newReassembly(meta)
	}
}

// chunk places an inbound chunk. It returns the completed payload and
// true if this chunk completed the file; unknown file-ids are reported
// via ok=false and must be discarded by the caller. total is the file's
// declared chunk count, for UI progress reporting.
func (s *fileStore) chunk(fileID string, index int, data []byte) (payload FilePayload, total int, completed bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.pending[fileID]
	if !exists {
		return FilePayload{}, 0, false, false
	}
	total = r.totalChunks
	if r.place(index, data) {
		payload = FilePayload{FileID: fileID, Name: r.name, Data: r.concat()}
		s.complete[fileID] = payload
		delete(s.pending, fileID)
		return payload, total, true, true
	}
	return FilePayload{}, total, false, true
}

func (s *fileStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete = make(map[string]FilePayload)
	s.pending = make(map[string]*reassembly)
}
