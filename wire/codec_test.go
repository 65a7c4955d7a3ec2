package wire

import (
	"testing"

	"localchat.dev/node/room"
)

func TestEncodeDecodeRoundTripSealed(t *testing.T) {
	ch, err := room.NewChannel("wire-test-room", nil)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}

	content := MessageContent{
		Structure: []Part{{Type: PartText, Content: "hello"}},
		Files:     nil,
	}
	env := Envelope{
		Type:        TypeMessage,
		MessageID:   "abc123",
		PeerID:      "peer1",
		DisplayName: "Alice",
		Timestamp:   1000,
	}

	data, err := Encode(env, content, ch)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(data, ch)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.MessageID != "abc123" || decoded.Type != TypeMessage {
		t.Fatalf("decoded envelope mismatch: %+v", decoded)
	}

	var got MessageContent
	if err := DecodeContent(decoded, &got); err != nil {
		t.Fatalf("DecodeContent: %v", err)
	}
	if len(got.Structure) != 1 || got.Structure[0].Content != "hello" {
		t.Fatalf("content round-trip mismatch: %+v", got)
	}
}

func TestDecodeMalformedJSONDropped(t *testing.T) {
	_, err := Decode([]byte("{not json"), nil)
	if err != ErrDecodeFailure {
		t.Fatalf("got %v, want ErrDecodeFailure", err)
	}
}

func TestDecodeMissingRequiredFieldDropped(t *testing.T) {
	_, err := Decode([]byte(`{"type":"join"}`), nil)
	if err != ErrDecodeFailure {
		t.Fatalf("got %v, want ErrDecodeFailure", err)
	}
}

func TestDecodeTamperedAuthTagDropped(t *testing.T) {
	ch, _ := room.NewChannel("wire-test-room-2", nil)
	env := Envelope{Type: TypeJoin, MessageID: "m1", PeerID: "p1", DisplayName: "A", Timestamp: 1}
	data, err := Encode(env, MessageContent{Structure: []Part{{Type: PartText, Content: "x"}}}, ch)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := Decode(data, ch); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	// Corrupt the authTag hex in the raw JSON and confirm Decode drops it.
	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	idx := indexOf(corrupted, []byte(`"authTag":"`))
	if idx < 0 {
		t.Fatalf("authTag field not found in %s", corrupted)
	}
	flipPos := idx + len(`"authTag":"`)
	if corrupted[flipPos] == 'f' {
		corrupted[flipPos] = '0'
	} else {
		corrupted[flipPos] = 'f'
	}

	if _, err := Decode(corrupted, ch); err == nil {
		t.Fatalf("expected decode of tampered envelope to fail")
	}
}

func TestDecodeEnvelopeExposesPlaintextIDWithoutOpening(t *testing.T) {
	ch, err := room.NewChannel("wire-test-room-3", nil)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	env := Envelope{Type: TypeMessage, MessageID: "plain-id", PeerID: "p1", DisplayName: "A", Timestamp: 1}
	data, err := Encode(env, MessageContent{Structure: []Part{{Type: PartText, Content: "x"}}}, ch)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// DecodeEnvelope must succeed and surface messageId/peerId with no
	// channel at all -- the content stays sealed.
	decoded, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if decoded.MessageID != "plain-id" || decoded.Encrypted == nil || decoded.Content != nil {
		t.Fatalf("DecodeEnvelope should expose plaintext id and leave content sealed: %+v", decoded)
	}

	opened, err := OpenContent(decoded, ch)
	if err != nil {
		t.Fatalf("OpenContent: %v", err)
	}
	var got MessageContent
	if err := DecodeContent(opened, &got); err != nil {
		t.Fatalf("DecodeContent: %v", err)
	}
	if len(got.Structure) != 1 || got.Structure[0].Content != "x" {
		t.Fatalf("content mismatch after split decode: %+v", got)
	}
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
