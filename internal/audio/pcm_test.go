package audio

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestDecodeChunk(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	got, err := DecodeChunk(base64.StdEncoding.EncodeToString(pcm), InputSampleRate)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if len(got) != len(pcm) {
		t.Fatalf("decoded %d bytes, want %d", len(got), len(pcm))
	}
}

func TestDecodeChunkRejections(t *testing.T) {
	cases := []struct {
		name       string
		payload    string
		sampleRate int
		want       error
	}{
		{"wrong rate", "AQA=", 44100, ErrBadSampleRate},
		{"empty", "", InputSampleRate, ErrEmptyChunk},
		{"bad base64", "!!!", InputSampleRate, ErrInvalidEncoding},
		{"odd length", base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), InputSampleRate, ErrOddLength},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeChunk(tc.payload, tc.sampleRate); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidateRejectsOversizedChunk(t *testing.T) {
	pcm := make([]byte, maxChunkBytes+2)
	if err := Validate(pcm); !errors.Is(err, ErrChunkTooLarge) {
		t.Fatalf("err = %v, want ErrChunkTooLarge", err)
	}
}

func TestDuration(t *testing.T) {
	pcm := make([]byte, InputSampleRate*bytesPerSample) // one second
	if d := Duration(pcm); d != time.Second {
		t.Fatalf("Duration = %v, want 1s", d)
	}
}
