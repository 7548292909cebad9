package ftdc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/cutterdrive/logging"
)

// epsilon is a small value for determining whether a float is 0.0.
const epsilon = 1e-9

const schemaIdentifier byte = 0x1

var errNotStruct = errors.New("stats object is not a struct")

type schema struct {
	// mapOrder is the order datum keys are walked when flattening values.
	mapOrder []string
	// fieldOrder is the flattened, dot delimited list of metric names, e.g: "arbiter.Level".
	fieldOrder []string
}

func (s *schema) equal(other *schema) bool {
	return other != nil && reflect.DeepEqual(s.fieldOrder, other.fieldOrder)
}

// writeSchema writes the schema byte followed by the field names as a json array and a newline.
func writeSchema(s *schema, output io.Writer) error {
	if _, err := output.Write([]byte{schemaIdentifier}); err != nil {
		return errors.Wrap(err, "writing schema byte")
	}
	// json.Encoder appends the newline the format expects.
	if err := json.NewEncoder(output).Encode(s.fieldOrder); err != nil {
		return errors.Wrap(err, "writing schema")
	}
	return nil
}

// writeDatum writes the diff bits, the time and the values that changed since prev. A nil prev
// is treated as all zeroes.
func writeDatum(t int64, prev, curr []float32, output io.Writer) error {
	if len(prev) != 0 && len(prev) != len(curr) {
		return errors.Errorf("mismatched reading sizes, prev: %d curr: %d", len(prev), len(curr))
	}

	diffs := make([]float32, len(curr))
	copy(diffs, curr)
	for idx := range prev {
		diffs[idx] -= prev[idx]
	}

	// Bit 0 of the first byte is the metric identifier, diff bits start at bit 1.
	diffBits := make([]byte, numDiffBytes(len(curr)))
	for idx, diff := range diffs {
		if math.Abs(float64(diff)) > epsilon {
			bitIdx := idx + 1
			diffBits[bitIdx/8] |= 1 << (bitIdx % 8)
		}
	}
	if _, err := output.Write(diffBits); err != nil {
		return errors.Wrap(err, "writing diff bits")
	}
	if err := binary.Write(output, binary.BigEndian, t); err != nil {
		return errors.Wrap(err, "writing time")
	}
	for idx, diff := range diffs {
		if math.Abs(float64(diff)) > epsilon {
			if err := binary.Write(output, binary.BigEndian, curr[idx]); err != nil {
				return errors.Wrap(err, "writing values")
			}
		}
	}
	return nil
}

// numDiffBytes is the byte count for one diff bit per field plus the leading identifier bit.
func numDiffBytes(numFields int) int {
	return 1 + numFields/8
}

func derefValue(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}

// walkStruct visits every numeric leaf of a stats struct in field order. Arrays are expanded with
// their index as the name, e.g: "Hall.0". Strings and other kinds are skipped.
func walkStruct(item reflect.Value, visit func(name string, value float32)) error {
	rVal := derefValue(item)
	if rVal.Kind() != reflect.Struct {
		return errNotStruct
	}
	walkFields(rVal, "", visit)
	return nil
}

func walkFields(rVal reflect.Value, prefix string, visit func(string, float32)) {
	rType := rVal.Type()
	for idx := 0; idx < rVal.NumField(); idx++ {
		if !rType.Field(idx).IsExported() {
			continue
		}
		walkValue(derefValue(rVal.Field(idx)), prefix+rType.Field(idx).Name, visit)
	}
}

func walkValue(v reflect.Value, name string, visit func(string, float32)) {
	switch {
	case v.CanUint():
		visit(name, float32(v.Uint()))
	case v.CanInt():
		visit(name, float32(v.Int()))
	case v.CanFloat():
		visit(name, float32(v.Float()))
	case v.Kind() == reflect.Bool:
		if v.Bool() {
			visit(name, 1)
		} else {
			visit(name, 0)
		}
	case v.Kind() == reflect.Array:
		for i := 0; i < v.Len(); i++ {
			walkValue(derefValue(v.Index(i)), name+"."+strconv.Itoa(i), visit)
		}
	case v.Kind() == reflect.Struct:
		walkFields(v, name+".", visit)
	}
}

// getSchema orders the datum keys and lists the fields of each, prefixed with the key.
func getSchema(data map[string]any) (*schema, error) {
	mapOrder := make([]string, 0, len(data))
	for name := range data {
		if strings.Contains(name, ".") {
			return nil, errors.Errorf("stats name %q must not contain a dot", name)
		}
		mapOrder = append(mapOrder, name)
	}
	sort.Strings(mapOrder)

	var fields []string
	for _, name := range mapOrder {
		err := walkStruct(reflect.ValueOf(data[name]), func(field string, _ float32) {
			fields = append(fields, name+"."+field)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "stats %q", name)
		}
	}
	return &schema{mapOrder: mapOrder, fieldOrder: fields}, nil
}

// flatten returns the values of data in schema order.
func flatten(data map[string]any, s *schema) ([]float32, error) {
	ret := make([]float32, 0, len(s.fieldOrder))
	for _, name := range s.mapOrder {
		stats, ok := data[name]
		if !ok {
			return nil, errors.Errorf("missing stats %q", name)
		}
		err := walkStruct(reflect.ValueOf(stats), func(_ string, value float32) {
			ret = append(ret, value)
		})
		if err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// FlatDatum is one parsed reading.
type FlatDatum struct {
	// Time is nanoseconds since the epoch.
	Time     int64
	Readings []Reading
}

// Reading is a fully qualified metric name paired with a value.
type Reading struct {
	MetricName string
	Value      float32
}

// ConvertedTime returns Time in UTC.
func (d *FlatDatum) ConvertedTime() time.Time {
	return time.Unix(0, d.Time).UTC()
}

// Value returns the reading for a metric name.
func (d *FlatDatum) Value(metricName string) (float32, bool) {
	for _, r := range d.Readings {
		if r.MetricName == metricName {
			return r.Value, true
		}
	}
	return 0, false
}

// Parse reads captures until EOF. On error the datums parsed so far are returned with the error.
func Parse(rawReader io.Reader) ([]FlatDatum, error) {
	logger := logging.NewBlankLogger("ftdc")
	logger.SetLevel(logging.ERROR)
	return ParseWithLogger(rawReader, logger)
}

// ParseWithLogger is Parse with debug output of every document.
func ParseWithLogger(rawReader io.Reader, logger logging.Logger) ([]FlatDatum, error) {
	ret := make([]FlatDatum, 0)
	reader := bufio.NewReader(rawReader)

	var current *schema
	// prevValues is nil right after a schema, which the writer also treats as all zeroes.
	var prevValues []float32
	for {
		peek, err := reader.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ret, nil
			}
			return ret, err
		}

		if peek[0] == schemaIdentifier {
			if _, err := reader.ReadByte(); err != nil {
				return ret, err
			}
			current, reader, err = readSchema(reader)
			if err != nil {
				return ret, err
			}
			logger.Debugw("schema", "fields", current.fieldOrder)
			prevValues = nil
			continue
		}
		if current == nil {
			return ret, errors.New("capture must start with a schema document")
		}

		changed, err := readDiffBits(reader, current)
		if err != nil {
			return ret, err
		}
		var t int64
		if err := binary.Read(reader, binary.BigEndian, &t); err != nil {
			return ret, errors.Wrap(err, "reading time")
		}
		values, err := readData(reader, current, changed, prevValues)
		if err != nil {
			return ret, err
		}
		prevValues = values
		logger.Debugw("datum", "time", t, "changed", len(changed))

		readings := make([]Reading, len(values))
		for idx, name := range current.fieldOrder {
			readings[idx] = Reading{name, values[idx]}
		}
		ret = append(ret, FlatDatum{Time: t, Readings: readings})
	}
}

// readSchema decodes the json field list and returns a reader positioned after its newline.
func readSchema(reader *bufio.Reader) (*schema, *bufio.Reader, error) {
	decoder := json.NewDecoder(reader)
	var fields []string
	if err := decoder.Decode(&fields); err != nil {
		return nil, nil, errors.Wrap(err, "reading schema")
	}

	// The decoder may have buffered bytes beyond the json value.
	retReader := bufio.NewReader(io.MultiReader(decoder.Buffered(), reader))
	if ch, err := retReader.ReadByte(); err != nil || ch != '\n' {
		return nil, nil, errors.New("schema is not terminated by a newline")
	}

	var mapOrder []string
	seen := make(map[string]struct{})
	for _, field := range fields {
		dot := strings.Index(field, ".")
		if dot < 0 {
			return nil, nil, errors.Errorf("schema field %q has no stats name", field)
		}
		if _, ok := seen[field[:dot]]; !ok {
			mapOrder = append(mapOrder, field[:dot])
			seen[field[:dot]] = struct{}{}
		}
	}
	return &schema{mapOrder: mapOrder, fieldOrder: fields}, retReader, nil
}

// readDiffBits returns the indexes of the schema fields that changed.
func readDiffBits(reader *bufio.Reader, s *schema) ([]int, error) {
	diffBytes := make([]byte, numDiffBytes(len(s.fieldOrder)))
	if _, err := io.ReadFull(reader, diffBytes); err != nil {
		return nil, errors.Wrap(err, "reading diff bits")
	}
	var ret []int
	for idx := range s.fieldOrder {
		bitIdx := idx + 1
		if diffBytes[bitIdx/8]&(1<<(bitIdx%8)) != 0 {
			ret = append(ret, idx)
		}
	}
	return ret, nil
}

// readData reads one value per changed field and carries the others over from prevValues.
func readData(reader *bufio.Reader, s *schema, changed []int, prevValues []float32) ([]float32, error) {
	ret := make([]float32, len(s.fieldOrder))
	if prevValues != nil {
		if len(prevValues) != len(ret) {
			return nil, errors.Errorf("mismatched previous values, got %d want %d", len(prevValues), len(ret))
		}
		copy(ret, prevValues)
	}
	for _, idx := range changed {
		if err := binary.Read(reader, binary.BigEndian, &ret[idx]); err != nil {
			return nil, errors.Wrap(err, "reading values")
		}
	}
	return ret, nil
}
