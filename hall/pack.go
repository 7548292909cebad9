package hall

const (
	fieldBits = 7
	fieldMax  = 1<<fieldBits - 1
)

// Order is the field layout used by Pack.
type Order int

const (
	// OrderForward puts sensor 0 in the most significant field.
	OrderForward Order = iota
	// OrderReverse puts sensor 0 in the least significant field.
	OrderReverse
)

// Pack places each delta, clamped to 7 bits, into its own field of a 28 bit value.
func Pack(delta [NumSensors]uint32, order Order) uint32 {
	var packed uint32
	for i, d := range delta {
		if d > fieldMax {
			d = fieldMax
		}
		field := NumSensors - 1 - i
		if order == OrderReverse {
			field = i
		}
		packed |= d << (uint(field) * fieldBits)
	}
	return packed
}

// Unpack splits a packed value back into its fields, in sensor order.
func Unpack(packed uint32, order Order) [NumSensors]uint32 {
	var delta [NumSensors]uint32
	for i := range delta {
		field := NumSensors - 1 - i
		if order == OrderReverse {
			field = i
		}
		delta[i] = (packed >> (uint(field) * fieldBits)) & fieldMax
	}
	return delta
}
