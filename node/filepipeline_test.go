package node

import (
	"bytes"
	"context"
	"testing"
	"time"

	"localchat.dev/node/wire"
)

func TestTotalChunksCeiling(t *testing.T) {
	cases := []struct {
		size int64
		want int
	}{
		{0, 0},
		{1, 1},
		{ChunkSize, 1},
		{ChunkSize + 1, 2},
		{150000, 3}, // literal scenario from the spec's end-to-end tests
	}
	for _, c := range cases {
		if got := totalChunks(c.size); got != c.want {
			t.Fatalf("totalChunks(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestSplitAndReassemble(t *testing.T) {
	data := make([]byte, 150000)
	for i := range data {
		data[i] = byte(i % 256)
	}

	chunks := splitChunks(data)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	meta := wire.FileMeta{ID: "f1", Name: "blob.bin", Size: int64(len(data)), TotalChunks: len(chunks)}
	store := newFileStore()
	store.announce(meta)

	var lastPayload FilePayload
	for i, c := range chunks {
		p, _, completed, ok := store.chunk("f1", i, c)
		if !ok {
			t.Fatalf("chunk %d: unexpected unknown file-id", i)
		}
		if i < len(chunks)-1 && completed {
			t.Fatalf("chunk %d: reassembly completed too early", i)
		}
		if completed {
			lastPayload = p
		}
	}

	if !bytes.Equal(lastPayload.Data, data) {
		t.Fatalf("reassembled data mismatch: got %d bytes, want %d", len(lastPayload.Data), len(data))
	}
}

func TestUnknownFileIDChunkDiscarded(t *testing.T) {
	store := newFileStore()
	_, _, _, ok := store.chunk("nope", 0, []byte("x"))
	if ok {
		t.Fatalf("expected unknown file-id to be reported as not-ok")
	}
}

func TestReassemblyNeverCompletesOnLostChunk(t *testing.T) {
	data := make([]byte, ChunkSize*3)
	chunks := splitChunks(data)
	meta := wire.FileMeta{ID: "f2", Name: "x", Size: int64(len(data)), TotalChunks: len(chunks)}
	store := newFileStore()
	store.announce(meta)

	// Deliver all but the middle chunk.
	for i, c := range chunks {
		if i == 1 {
			continue
		}
		_, _, completed, _ := store.chunk("f2", i, c)
		if completed {
			t.Fatalf("reassembly should not complete with a missing chunk")
		}
	}
	if _, ok := store.get("f2"); ok {
		t.Fatalf("file should remain pending indefinitely when a chunk is lost")
	}
}

func TestChunkSenderPacesAndPreservesOrder(t *testing.T) {
	data := make([]byte, ChunkSize*3)
	var received []int
	s := newChunkSender()
	start := time.Now()
	s.send(context.Background(), data, func(index int, chunkData string) {
		received = append(received, index)
	})
	// The limiter starts with one token, so three chunks wait two intervals.
	if elapsed := time.Since(start); elapsed < 2*chunkPacingInterval {
		t.Fatalf("3 chunks sent in %v, want at least %v of pacing", elapsed, 2*chunkPacingInterval)
	}
	for i, idx := range received {
		if idx != i {
			t.Fatalf("chunks emitted out of order: %v", received)
		}
	}
	if len(received) != 3 {
		t.Fatalf("got %d chunks emitted, want 3", len(received))
	}
}
