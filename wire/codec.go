package wire

import (
	"encoding/json"
	"errors"

	"localchat.dev/node/room"
)

// ErrDecodeFailure covers malformed JSON or a missing required field.
// The caller must discard the datagram silently, never treat this as
// fatal.
var ErrDecodeFailure = errors.New("wire: decode failure")

// Encode marshals content (nil for content-less types), seals it under
// ch if ch is non-nil and content is present, and serializes the final
// envelope to wire bytes.
func Encode(env Envelope, content any, ch *room.Channel) ([]byte, error) {
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		if ch != nil {
			sealed, err := ch.Seal(raw)
			if err != nil {
				return nil, err
			}
			env.Encrypted = &sealed
			env.Content = nil
		} else {
			env.Content = raw
		}
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses wire bytes into an Envelope without opening any
// sealed content. The envelope's identity fields (type, messageId,
// peerId) are plaintext on the wire regardless of encryption, so
// callers that need to dedup or reject self-origin datagrams before
// paying for decryption (§4.6: "checked before decryption, using the
// plaintext envelope id") can do so against the result of this call
// alone, then pass it to OpenContent.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, ErrDecodeFailure
	}
	if env.Type == "" || env.MessageID == "" || env.PeerID == "" {
		return Envelope{}, ErrDecodeFailure
	}
	return env, nil
}

// OpenContent opens env's sealed content (if any) using ch, replacing
// Encrypted with the recovered plaintext Content. Envelopes with no
// Encrypted field pass through unchanged.
func OpenContent(env Envelope, ch *room.Channel) (Envelope, error) {
	if env.Encrypted == nil {
		return env, nil
	}
	if ch == nil {
		return Envelope{}, room.ErrAeadFailure
	}
	plain, err := ch.Open(*env.Encrypted)
	if err != nil {
		return Envelope{}, err
	}
	env.Content = plain
	env.Encrypted = nil
	return env, nil
}

// Decode parses wire bytes into an Envelope and, if the content was
// sealed, opens it back into plaintext Content using ch. Any malformed
// input or AEAD failure returns ErrDecodeFailure / room.ErrAeadFailure
// and the caller drops the datagram. Equivalent to DecodeEnvelope
// followed by OpenContent; callers that need to dedup on the plaintext
// id before decryption should call those two steps separately instead.
func Decode(data []byte, ch *room.Channel) (Envelope, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return Envelope{}, err
	}
	return OpenContent(env, ch)
}

// DecodeContent unmarshals an envelope's content into the caller-
// supplied shape, chosen by the caller based on env.Type.
func DecodeContent(env Envelope, out any) error {
	if len(env.Content) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Content, out); err != nil {
		return ErrDecodeFailure
	}
	return nil
}
