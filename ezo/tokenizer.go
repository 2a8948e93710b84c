package ezo

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter frames EZO replies for a bufio.Scanner. Replies are terminated by
// a single carriage return, which is consumed but not included in the token.
// Bytes outside the printable ASCII range (32-126) are dropped rather than
// appended; EZO circuits prepend stray control bytes after power-up.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining unterminated data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\r'); i >= 0 {
		return i + 1, printable(data[:i]), nil
	}

	if atEOF {
		return len(data), printable(data), nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// printable strips bytes outside the 32-126 range. The input is returned
// unmodified when nothing needs stripping, which is the common case.
func printable(data []byte) []byte {
	clean := true
	for _, c := range data {
		if c < 32 || c > 126 {
			clean = false
			break
		}
	}
	if clean {
		return data
	}

	out := make([]byte, 0, len(data))
	for _, c := range data {
		if c >= 32 && c <= 126 {
			out = append(out, c)
		}
	}
	return out
}

// Classify identifies the nature of a reply line. It does not validate
// reading syntax; TypeData only means "not empty and not an acknowledgement",
// so callers should hand TypeData lines to ParseReading.
func Classify(line string) ResponseType {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return TypeEmpty
	case strings.HasPrefix(line, Ack):
		return TypeAck
	default:
		return TypeData
	}
}
