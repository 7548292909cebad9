package handpiece

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"go.uber.org/multierr"

	"go.viam.com/cutterdrive/hall"
	"go.viam.com/cutterdrive/logging"
)

// maxSyncBytes bounds how far ReadSample scans for a header before giving up on the cycle.
const maxSyncBytes = 4 * (2 + PayloadSize)

type serialSource struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader
	logger logging.Logger
}

// NewSerialSource opens the configured serial device and puts the hand-piece in streaming mode.
func NewSerialSource(cfg Config, logger logging.Logger) (Source, error) {
	baud := cfg.Baud
	if baud == 0 {
		baud = defaultBaud
		logger.Infof("hand-piece baud not set, using default %d", baud)
	}
	timeout := cfg.ReadTimeoutMs
	if timeout == 0 {
		timeout = defaultReadTimeoutMs
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: time.Duration(timeout) * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open hand-piece serial port %s", cfg.Device)
	}
	src, err := NewSourceFromPort(port, logger)
	if err != nil {
		return nil, multierr.Combine(err, port.Close())
	}
	return src, nil
}

// NewSourceFromPort streams samples from an already opened port. A read returning no data is
// treated as the end of the read timeout.
func NewSourceFromPort(port io.ReadWriteCloser, logger logging.Logger) (Source, error) {
	if _, err := port.Write(streamCommand); err != nil {
		return nil, errors.Wrap(err, "failed to start hand-piece streaming")
	}
	return &serialSource{port: port, reader: bufio.NewReaderSize(port, 4*(2+PayloadSize)), logger: logger}, nil
}

func (s *serialSource) ReadSample(ctx context.Context) (hall.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sync(ctx); err != nil {
		return hall.Sample{}, err
	}
	payload := make([]byte, PayloadSize)
	if _, err := io.ReadFull(s.reader, payload); err != nil {
		return hall.Sample{}, readError(err)
	}
	return DecodePayload(payload)
}

// sync consumes bytes up to and including the next frame header.
func (s *serialSource) sync(ctx context.Context) error {
	var prev byte
	for i := 0; i < maxSyncBytes; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := s.reader.ReadByte()
		if err != nil {
			return readError(err)
		}
		if prev == frameSync && b == frameAddress {
			return nil
		}
		prev = b
	}
	s.logger.Debugw("no hand-piece frame header found", "scanned", maxSyncBytes)
	return ErrTimeout
}

func (s *serialSource) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrNoProgress) {
		return ErrTimeout
	}
	return errors.Wrap(err, "hand-piece read failed")
}
