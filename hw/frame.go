package hw

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go-cvbridge/engine"
)

const (
	SOF0 = 0xAA
	SOF1 = 0x55

	CmdOutputs = 0x20 // host -> board: slot CVs + trig mask
	CmdInputs  = 0x21 // board -> host: input CVs + gate mask

	maskBytes  = 4
	maxPayload = 254 // LEN counts CMD too and fits in one byte
)

var (
	ErrBadFrame = errors.New("hw: malformed frame")
	ErrChecksum = errors.New("hw: checksum mismatch")
)

// Frame is one decoded packet
type Frame struct {
	Cmd     byte
	Payload []byte
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][payload...][CKS]
//
// LEN counts CMD plus payload; CKS is the XOR of LEN, CMD and payload.
func (f Frame) Encode() ([]byte, error) {
	if len(f.Payload) > maxPayload {
		return nil, fmt.Errorf("%w: payload %d bytes", ErrBadFrame, len(f.Payload))
	}
	length := byte(len(f.Payload) + 1)
	cks := length ^ f.Cmd
	for _, b := range f.Payload {
		cks ^= b
	}

	out := make([]byte, 0, len(f.Payload)+5)
	out = append(out, SOF0, SOF1, length, f.Cmd)
	out = append(out, f.Payload...)
	return append(out, cks), nil
}

// EncodeOutputs packs slot outputs as big-endian int16 CVs followed by a
// 32-bit trig mask (bit N = slot N fired this tick)
func EncodeOutputs(outs []engine.SlotOutput) ([]byte, error) {
	payload := make([]byte, 0, len(outs)*2+maskBytes)
	var trig uint32
	for i, o := range outs {
		payload = binary.BigEndian.AppendUint16(payload, uint16(clamp16(o.CV)))
		if o.Trig && i < 32 {
			trig |= 1 << i
		}
	}
	payload = binary.BigEndian.AppendUint32(payload, trig)
	return Frame{Cmd: CmdOutputs, Payload: payload}.Encode()
}

// DecodeOutputs is the inverse of EncodeOutputs
func DecodeOutputs(payload []byte) ([]engine.SlotOutput, error) {
	n, err := channelCount(payload)
	if err != nil {
		return nil, err
	}
	trig := binary.BigEndian.Uint32(payload[n*2:])
	outs := make([]engine.SlotOutput, n)
	for i := range outs {
		outs[i].CV = int32(int16(binary.BigEndian.Uint16(payload[i*2:])))
		outs[i].Trig = trig&(1<<i) != 0
	}
	return outs, nil
}

// EncodeInputs packs input samples the way the board reports them
func EncodeInputs(samples []engine.InputSample) ([]byte, error) {
	payload := make([]byte, 0, len(samples)*2+maskBytes)
	var gates uint32
	for i, s := range samples {
		payload = binary.BigEndian.AppendUint16(payload, uint16(clamp16(s.CV)))
		if s.Gate && i < 32 {
			gates |= 1 << i
		}
	}
	payload = binary.BigEndian.AppendUint32(payload, gates)
	return Frame{Cmd: CmdInputs, Payload: payload}.Encode()
}

// DecodeInputs unpacks an input frame payload
func DecodeInputs(payload []byte) ([]engine.InputSample, error) {
	n, err := channelCount(payload)
	if err != nil {
		return nil, err
	}
	gates := binary.BigEndian.Uint32(payload[n*2:])
	samples := make([]engine.InputSample, n)
	for i := range samples {
		samples[i].CV = int32(int16(binary.BigEndian.Uint16(payload[i*2:])))
		samples[i].Gate = gates&(1<<i) != 0
	}
	return samples, nil
}

func channelCount(payload []byte) (int, error) {
	if len(payload) < maskBytes || (len(payload)-maskBytes)%2 != 0 {
		return 0, fmt.Errorf("%w: payload %d bytes", ErrBadFrame, len(payload))
	}
	n := (len(payload) - maskBytes) / 2
	if n > 32 {
		return 0, fmt.Errorf("%w: %d channels", ErrBadFrame, n)
	}
	return n, nil
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// FrameReader reassembles frames from a byte stream. Garbage before a start
// marker is skipped; a frame with a bad checksum is dropped and the reader
// resyncs on the next marker.
type FrameReader struct {
	buf []byte
}

// Feed appends data and returns every complete frame it now holds. A non-nil
// error reports that at least one corrupt frame was discarded.
func (r *FrameReader) Feed(data []byte) ([]Frame, error) {
	r.buf = append(r.buf, data...)
	var frames []Frame
	var firstErr error

	for {
		start := r.sync()
		if start < 0 {
			// keep a trailing SOF0 that may pair with the next read
			if n := len(r.buf); n > 0 && r.buf[n-1] == SOF0 {
				r.buf = r.buf[n-1:]
			} else {
				r.buf = r.buf[:0]
			}
			break
		}
		r.buf = r.buf[start:]
		if len(r.buf) < 4 {
			break
		}
		length := int(r.buf[2])
		if length == 0 {
			if firstErr == nil {
				firstErr = ErrBadFrame
			}
			r.buf = r.buf[2:]
			continue
		}
		total := 3 + length + 1
		if len(r.buf) < total {
			break
		}

		body := r.buf[3 : 3+length]
		cks := r.buf[2]
		for _, b := range body {
			cks ^= b
		}
		if cks != r.buf[total-1] {
			if firstErr == nil {
				firstErr = ErrChecksum
			}
			r.buf = r.buf[2:]
			continue
		}

		payload := make([]byte, length-1)
		copy(payload, body[1:])
		frames = append(frames, Frame{Cmd: body[0], Payload: payload})
		r.buf = r.buf[total:]
	}
	return frames, firstErr
}

// Reset drops any partial frame
func (r *FrameReader) Reset() {
	r.buf = r.buf[:0]
}

func (r *FrameReader) sync() int {
	for i := 0; i+1 < len(r.buf); i++ {
		if r.buf[i] == SOF0 && r.buf[i+1] == SOF1 {
			return i
		}
	}
	return -1
}
