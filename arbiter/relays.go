package arbiter

import "fmt"

// Port is an expander output port.
type Port int

const (
	// PortA drives the relays.
	PortA Port = iota
	// PortB drives the hand-piece reset line.
	PortB
)

func (p Port) String() string {
	switch p {
	case PortA:
		return "A"
	case PortB:
		return "B"
	}
	return fmt.Sprintf("Port(%d)", int(p))
}

// RelayWord is the bit set written to port A.
type RelayWord uint16

const (
	// RelayMain closes the main drive relay.
	RelayMain RelayWord = 1 << iota
	// RelayIrrigation powers the irrigation pump.
	RelayIrrigation
	// RelayCutter enables the cutter output.
	RelayCutter
)

const (
	// RelaysDisabled is the safe word: main relay on, irrigation and cutter off.
	RelaysDisabled = RelayMain
	// ResetHold is the port B word that holds the hand-piece in reset.
	ResetHold RelayWord = 0
	// ResetRelease is the port B word that releases the hand-piece reset line.
	ResetRelease RelayWord = 1
)

func (w RelayWord) String() string {
	return fmt.Sprintf("main=%t irrigation=%t cutter=%t",
		w&RelayMain != 0, w&RelayIrrigation != 0, w&RelayCutter != 0)
}

// RelayStatus is the last word commanded on port A.
type RelayStatus struct {
	Word RelayWord
	// Known is false until the first successful write.
	Known bool
}
