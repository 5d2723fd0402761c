// Package audio validates the PCM16LE mono chunks clients stream in.
package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	// InputSampleRate is the only rate the upstream accepts for speech input.
	InputSampleRate = 16000
	// OutputSampleRate is what the upstream synthesizes at.
	OutputSampleRate = 24000

	bytesPerSample = 2

	// maxChunkBytes caps one streamed chunk at one second of input audio.
	maxChunkBytes = InputSampleRate * bytesPerSample
)

var (
	ErrEmptyChunk      = errors.New("empty audio chunk")
	ErrOddLength       = errors.New("pcm16 chunk has odd byte length")
	ErrChunkTooLarge   = fmt.Errorf("audio chunk exceeds %d bytes", maxChunkBytes)
	ErrBadSampleRate   = fmt.Errorf("sample rate must be %d", InputSampleRate)
	ErrInvalidEncoding = errors.New("invalid base64 audio payload")
)

// DecodeChunk validates and decodes one client audio chunk.
func DecodeChunk(pcmBase64 string, sampleRate int) ([]byte, error) {
	if sampleRate != InputSampleRate {
		return nil, ErrBadSampleRate
	}
	if pcmBase64 == "" {
		return nil, ErrEmptyChunk
	}
	pcm, err := base64.StdEncoding.DecodeString(pcmBase64)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	return pcm, Validate(pcm)
}

// Validate checks raw PCM16LE bytes for well-formedness.
func Validate(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyChunk
	}
	if len(pcm)%bytesPerSample != 0 {
		return ErrOddLength
	}
	if len(pcm) > maxChunkBytes {
		return ErrChunkTooLarge
	}
	return nil
}

// Duration reports how much input speech a PCM16LE mono chunk carries.
func Duration(pcm []byte) time.Duration {
	samples := len(pcm) / bytesPerSample
	return time.Duration(samples) * time.Second / InputSampleRate
}
