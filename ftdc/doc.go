// Package ftdc records control cycles in a compact diff based capture format and parses them
// back. Two consecutive cycles of the drive look like:
//
// Datum1 = {time: 123, arbiter: {Level: 40, TargetSpeed: 4200}, hall: {Hall.0: 140, Hall.1: 150}}
// Datum2 = {time: 124, arbiter: {Level: 40, TargetSpeed: 4200}, hall: {Hall.0: 141, Hall.1: 150}}
//
// Metric names rarely change between cycles and most values stay put, so metric names are only
// written when they change and unchanged values cost a single bit.
//
// Using a pseudo EBNF notation, an FTDC file is:
// FTDC = ftdc_doc*
//
// ftdc_doc = schema | metric
//
// schema =
//
//	schema_identifier : 0x01 (a full byte of value 1)
//	schema : <array of strings serialized as JSON, including a trailing \n(0xa)>
//
// metric_reading =
//
//	metric_identifier : 0b0 (a single bit of value 0)
//	diff_bit : bit* + byte alignment padding
//	time: int64 <nanoseconds since the 1970 epoch>
//	values : float32*
//
// Because a metric reading is not meaningful without a schema, a file will always start with a
// schema document. The first byte of a schema document is 0x01 followed by a JSON list of strings
// and a UNIX newline (0x0a). The JSON strings are "flattened" using a dot to concatenate the map
// key with the metric name. E.g:
//
// 0000 0001 ["arbiter.Level", "arbiter.TargetSpeed", "hall.Hall.0", "hall.Hall.1"]\n
// 7       0
//
// Following a schema document will be 0 or more metric documents. A metric reading has one diff bit
// per reading (i.e: the "size" of the schema). In our example, that's four bits.  A diff bit is set
// to `0` if the new reading for a given metric is same as the immediately prior reading. A diff bit
// is set to `1` if the readings differ. Each reading that differs will have one 32-bit float value
// written as part of this metric reading document. A metric can contain numeric values that are not
// 32-bit floats. This format is lossy, cycle metrics fit comfortably in a float32.
//
// The diff bits immediately follow the metric bit value of 0. In other words, the first byte
// containing the metric bit is packed/merged with the first (up to seven) diff bits. The remaining
// diff bytes each contain up to eight diff bits. The last diff byte may not have eight metrics to
// fill out a full byte. A full byte will be written none the less for alignment. The higher bits
// will be wasted.
//
// Note that the number of diff bytes to write/read is a function of the number of fields in the
// most recent schema.
//
// The initial metric reading immediately following a schema document does not have a diff to
// compare against. In this case the format assumes a prior value of `0` for each metric. To
// continue our example, let's consider the first metric reading document.
//
// For clarity, the diff bits are described in a binary representation detailing the exact
// bits. Where bit-0 is the metric bit (defined as 0) and the diff bits 1 through 4 (inclusive) are
// set to 1. And the numbers written for time/readings are annotated. All numbers are big-endian
// encoded.
//
// 0001 1110 <64bit time> <32bit "arbiter.Level"> <32bit "arbiter.TargetSpeed"> <32bit "hall.Hall.0"> <32bit "hall.Hall.1">
// 7       0
//
// Now let's see what the second datum will look like. First we calculate which metric readings have
// changed:
// - arbiter.Level: 40 -> 40 (no diff)
// - arbiter.TargetSpeed: 4200 -> 4200 (no diff)
// - hall.Hall.0: 140 -> 141 (diff)
// - hall.Hall.1: 150 -> 150 (no diff)
//
// Giving us the following encoding:
//
// 0000 1000 <64bit time> <32bit "hall.Hall.0">
// 7       0
//
// If a datum changes the set of metrics (e.g: the drive stats are dropped), a new schema document
// is written:
//
// 0000 0001 ["hall.Hall.0", "hall.Hall.1"]\n
// 7       0
//
// To maybe illuminate the necessity of the schema/metric identifier, when a parser is about to read
// a new document, it needs to know whether:
// - to interpret the bytes as json for a new schema, or
// - as values for a new metric reading
//
// A parser can read a single byte and look at the least significant bit to determine which path to
// take.
package ftdc
