package hw

import (
	"bytes"
	"errors"
	"testing"

	"go-cvbridge/engine"
)

func TestFrameEncodeLayout(t *testing.T) {
	data, err := Frame{Cmd: 0x20, Payload: []byte{0x01, 0x02}}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{SOF0, SOF1, 3, 0x20, 0x01, 0x02, 3 ^ 0x20 ^ 0x01 ^ 0x02}
	if !bytes.Equal(data, want) {
		t.Errorf("expected % X, got % X", want, data)
	}
}

func TestFrameEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Frame{Cmd: CmdOutputs, Payload: make([]byte, 255)}.Encode()
	if !errors.Is(err, ErrBadFrame) {
		t.Errorf("expected ErrBadFrame, got %v", err)
	}
}

func TestOutputFrameCarriesCVAndTrigs(t *testing.T) {
	outs := []engine.SlotOutput{
		{CV: 0},
		{CV: engine.MaxCV, Trig: true},
		{CV: -1536},
		{CV: 40000},
	}
	data, err := EncodeOutputs(outs)
	if err != nil {
		t.Fatal(err)
	}

	var r FrameReader
	frames, err := r.Feed(data)
	if err != nil || len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d (err=%v)", len(frames), err)
	}
	if frames[0].Cmd != CmdOutputs {
		t.Errorf("expected cmd %#x, got %#x", CmdOutputs, frames[0].Cmd)
	}

	got, err := DecodeOutputs(frames[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	want := []engine.SlotOutput{{CV: 0}, {CV: engine.MaxCV, Trig: true}, {CV: -1536}, {CV: 32767}}
	if len(got) != len(want) {
		t.Fatalf("expected %d outputs, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("output %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestDecodeInputsRejectsOddPayload(t *testing.T) {
	if _, err := DecodeInputs([]byte{0, 0, 0}); !errors.Is(err, ErrBadFrame) {
		t.Errorf("short payload: expected ErrBadFrame, got %v", err)
	}
	if _, err := DecodeInputs([]byte{0, 0, 0, 0, 1}); !errors.Is(err, ErrBadFrame) {
		t.Errorf("odd payload: expected ErrBadFrame, got %v", err)
	}
}

func TestFrameReaderSplitAndGarbage(t *testing.T) {
	a, _ := Frame{Cmd: CmdInputs, Payload: []byte{1, 2, 3, 4}}.Encode()
	b, _ := Frame{Cmd: CmdInputs, Payload: []byte{5, 6, 7, 8}}.Encode()
	stream := append([]byte{0x00, 0x13, SOF0}, a...)
	stream = append(stream, b...)

	var r FrameReader
	var frames []Frame
	// feed one byte at a time
	for i := range stream {
		got, err := r.Feed(stream[i : i+1])
		if err != nil {
			t.Fatalf("byte %d: unexpected error %v", i, err)
		}
		frames = append(frames, got...)
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Payload, []byte{1, 2, 3, 4}) || !bytes.Equal(frames[1].Payload, []byte{5, 6, 7, 8}) {
		t.Errorf("unexpected payloads % X / % X", frames[0].Payload, frames[1].Payload)
	}
}

func TestFrameReaderResyncsAfterChecksumError(t *testing.T) {
	bad, _ := Frame{Cmd: CmdInputs, Payload: []byte{1, 2, 3, 4}}.Encode()
	bad[len(bad)-1] ^= 0xFF
	good, _ := Frame{Cmd: CmdInputs, Payload: []byte{9, 9, 9, 9}}.Encode()

	var r FrameReader
	frames, err := r.Feed(append(bad, good...))
	if !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0].Payload, []byte{9, 9, 9, 9}) {
		t.Errorf("expected the good frame after resync, got %+v", frames)
	}
}
