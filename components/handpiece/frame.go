package handpiece

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"go.viam.com/cutterdrive/hall"
)

const (
	frameSync    byte = 0xFF
	frameAddress byte = 0x05
	frameWords        = 7
	// PayloadSize is the number of bytes following the two byte header.
	PayloadSize = frameWords * 2
)

// streamCommand switches the hand-piece into streaming mode.
var streamCommand = []byte{frameSync, frameAddress, 0x00, 0x00}

// DecodePayload turns a frame payload into a sample. Words are little endian in the order
// temperature, hall 0..3, 2.5V monitor, 1.5V monitor. An all-zero payload decodes to the zero
// sample.
func DecodePayload(payload []byte) (hall.Sample, error) {
	if len(payload) != PayloadSize {
		return hall.Sample{}, errors.Errorf("expected a %d byte payload, got %d", PayloadSize, len(payload))
	}
	var words [frameWords]uint16
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(payload[2*i:])
	}

	s := hall.Sample{
		TempRaw:        words[0],
		VoltageMonitor: [2]uint16{words[6], words[5]},
	}
	copy(s.Hall[:], words[1:5])
	if s.IsZero() {
		return s, nil
	}
	for _, w := range words[:5] {
		if w == 0 {
			return hall.Sample{}, ErrInvalidSample
		}
	}
	return s, nil
}

// EncodeFrame is the inverse of DecodePayload, header included.
func EncodeFrame(s hall.Sample) []byte {
	words := [frameWords]uint16{
		s.TempRaw, s.Hall[0], s.Hall[1], s.Hall[2], s.Hall[3],
		s.VoltageMonitor[1], s.VoltageMonitor[0],
	}
	out := make([]byte, 2, 2+PayloadSize)
	out[0], out[1] = frameSync, frameAddress
	for _, w := range words {
		out = binary.LittleEndian.AppendUint16(out, w)
	}
	return out
}
