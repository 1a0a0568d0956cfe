package ingest

import (
	"errors"
	"testing"
)

func TestMarkFrameRoundtrip(t *testing.T) {
	frame := MarkFrame{
		File:  7,
		Run:   3,
		Start: 100,
		End:   250,
		Label: 42,
	}

	data := EncodeMarkFrame(frame)
	if len(data) != MarkFrameSize {
		t.Fatalf("frame size = %d, want %d", len(data), MarkFrameSize)
	}

	got, err := DecodeMarkFrame(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != frame {
		t.Fatalf("got %+v, want %+v", got, frame)
	}
}

func TestDecodeMarkFrameRejectsWrongSize(t *testing.T) {
	for _, n := range []int{0, 1, 19, 21, 40} {
		if _, err := DecodeMarkFrame(make([]byte, n)); !errors.Is(err, ErrBadFrame) {
			t.Errorf("size %d: err = %v, want ErrBadFrame", n, err)
		}
	}
}
