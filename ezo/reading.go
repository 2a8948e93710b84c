package ezo

import (
	"strconv"
	"strings"
)

// Reading is one measurement decoded from a reply line.
//
// The Has* flags record whether the corresponding field label appeared in the
// reply. They are only ever set for the labeled format; an unlabeled reply
// carries values positionally, so all four flags stay false even when the
// four-field form supplies TDS, SAL and SG values.
type Reading struct {
	EC  float64 // electrical conductivity, µS/cm
	TDS float64 // total dissolved solids
	SAL float64 // salinity
	SG  float64 // specific gravity

	HasEC  bool
	HasTDS bool
	HasSAL bool
	HasSG  bool
}

// ParseReading decodes a reply line into a Reading. It reports false for
// anything that is not a measurement: empty lines, acknowledgements, labeled
// replies missing the EC label, and unlabeled replies with a field count
// other than one or four.
//
// Field values that fail to parse as floats are kept as 0 rather than
// rejecting the line; the circuit firmware may emit blank fields.
func ParseReading(line string) (Reading, bool) {
	var r Reading

	s := strings.TrimSpace(line)
	if s == "" {
		return r, false
	}
	if strings.HasPrefix(s, Ack) {
		return r, false
	}

	tokens := strings.Split(s, ",")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}

	if hasLabel(tokens) {
		return parseLabeled(tokens)
	}
	return parseUnlabeled(tokens)
}

func hasLabel(tokens []string) bool {
	for _, tok := range tokens {
		switch tok {
		case LabelEC, LabelTDS, LabelSAL, LabelSG:
			return true
		}
	}
	return false
}

// parseLabeled walks label/value pairs in any order and any subset. The
// reading is valid only if the EC label was present.
func parseLabeled(tokens []string) (Reading, bool) {
	var r Reading

	for i := 0; i < len(tokens); i++ {
		var value float64
		if i+1 < len(tokens) {
			value = parseField(tokens[i+1])
		}

		switch tokens[i] {
		case LabelEC:
			r.EC, r.HasEC = value, true
		case LabelTDS:
			r.TDS, r.HasTDS = value, true
		case LabelSAL:
			r.SAL, r.HasSAL = value, true
		case LabelSG:
			r.SG, r.HasSG = value, true
		default:
			continue
		}
		i++ // skip the consumed value token
	}

	if !r.HasEC {
		return Reading{}, false
	}
	return r, true
}

// parseUnlabeled accepts the two positional forms: a single EC field, or
// exactly EC,TDS,SAL,SG. Any other arity is malformed.
func parseUnlabeled(tokens []string) (Reading, bool) {
	var r Reading

	switch len(tokens) {
	case 1:
		r.EC = parseField(tokens[0])
	case 4:
		r.EC = parseField(tokens[0])
		r.TDS = parseField(tokens[1])
		r.SAL = parseField(tokens[2])
		r.SG = parseField(tokens[3])
	default:
		return r, false
	}
	return r, true
}

func parseField(tok string) float64 {
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0
	}
	return f
}
