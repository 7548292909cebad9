package ftdc

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/cutterdrive/logging"
)

// A Recorder appends datums to a capture. A new schema document is written whenever the set of
// metrics changes.
type Recorder struct {
	mu     sync.Mutex
	out    *bufio.Writer
	closer io.Closer
	logger logging.Logger

	schema     *schema
	prevValues []float32
	datums     int
}

// NewRecorder writes captures to w.
func NewRecorder(w io.Writer, logger logging.Logger) *Recorder {
	return &Recorder{out: bufio.NewWriter(w), logger: logger}
}

// OpenRecorder appends captures to the file at path, creating it if needed.
func OpenRecorder(path string, logger logging.Logger) (*Recorder, error) {
	//nolint:gosec
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening capture file %s", path)
	}
	r := NewRecorder(f, logger)
	r.closer = f
	logger.Infow("capturing cycles", "path", path)
	return r, nil
}

// Add records one datum. data maps a stats name to a struct of numeric fields.
func (r *Recorder) Add(t time.Time, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := getSchema(data)
	if err != nil {
		return err
	}
	if !s.equal(r.schema) {
		if err := writeSchema(s, r.out); err != nil {
			return err
		}
		r.logger.Debugw("new capture schema", "fields", len(s.fieldOrder))
		r.schema = s
		r.prevValues = nil
	}

	values, err := flatten(data, r.schema)
	if err != nil {
		return err
	}
	if err := writeDatum(t.UnixNano(), r.prevValues, values, r.out); err != nil {
		return err
	}
	r.prevValues = values
	r.datums++
	return r.out.Flush()
}

// Datums counts the datums recorded.
func (r *Recorder) Datums() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.datums
}

// Close flushes and closes the underlying file, if the recorder opened one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.out.Flush()
	if r.closer != nil {
		err = multierr.Combine(err, r.closer.Close())
		r.closer = nil
	}
	return err
}
