// Package ezo implements the ASCII line protocol spoken by Atlas Scientific
// EZO EC conductivity circuits in UART mode.
//
// Commands are case-sensitive ASCII strings terminated by a single carriage
// return. The circuit answers each command with one line: either an
// acknowledgement starting with "*OK" or a measurement reading. Readings come
// in two mutually exclusive encodings, a labeled form
// ("EC,1413,TDS,700,SAL,700,SG,1.001", any subset and order of labels) and an
// unlabeled CSV form ("1413" or "1413,700,700,1.001").
package ezo

const (
	// CR terminates every command and every reply on the wire.
	CR = "\r"

	// Ack prefixes a configuration acknowledgement reply.
	Ack = "*OK"
)

// Wire commands understood by the circuit.
const (
	CmdRead       = "R"
	CmdInfo       = "I"
	CmdStatus     = "Status"
	CmdFactory    = "Factory"
	CmdSleep      = "Sleep"
	CmdTempQuery  = "T,?"
	CmdCalQuery   = "Cal,?"
	CmdCalClear   = "Cal,clear"
	CmdCalDry     = "Cal,dry"
	CmdOutputs    = "O,?"
	CmdCellQuery  = "K,?"
	CmdLedOn      = "L,1"
	CmdLedOff     = "L,0"
	CmdContOn     = "C,1"
	CmdContOff    = "C,0"
)

// Field labels used by the labeled reading format and by the O command.
const (
	LabelEC  = "EC"
	LabelTDS = "TDS"
	LabelSAL = "SAL"
	LabelSG  = "SG"
)

type ResponseType int

const (
	TypeEmpty   ResponseType = iota // no reply within the timeout window
	TypeAck                         // configuration acknowledgement (*OK...)
	TypeData                        // anything else, candidate reading
)
