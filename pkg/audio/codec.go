package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedAudio is returned by [Decode] when a transport token cannot be
// decoded into a valid PCM16 frame. Callers log and discard the offending
// message; a malformed chunk is never fatal to the stream.
var ErrMalformedAudio = errors.New("audio: malformed transport token")

// Encode converts a frame's PCM16 data into the transport-safe text encoding
// used by the streaming speech protocol. Pure and total for any frame.
func Encode(frame Frame) string {
	return base64.StdEncoding.EncodeToString(frame.Data)
}

// Decode converts a transport token back into a frame at the given sample
// rate. It fails with [ErrMalformedAudio] if the token is not valid base64
// or does not decode to whole 16-bit samples.
func Decode(token string, sampleRate int) (Frame, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedAudio, err)
	}
	if len(data)%2 != 0 {
		return Frame{}, fmt.Errorf("%w: odd byte count %d", ErrMalformedAudio, len(data))
	}
	return Frame{Data: data, SampleRate: sampleRate}, nil
}
