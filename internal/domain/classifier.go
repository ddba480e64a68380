package domain

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

type OutcomeKind int

const (
	OutcomeEmpty OutcomeKind = iota
	OutcomeSuccess
	OutcomeTimeout
	OutcomeExpectedZero
	OutcomeUnexpectedCode
	OutcomeMalformed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeEmpty:
		return "Empty"
	case OutcomeSuccess:
		return "Success"
	case OutcomeTimeout:
		return "Timeout"
	case OutcomeExpectedZero:
		return "ExpectedZero"
	case OutcomeUnexpectedCode:
		return "UnexpectedCode"
	case OutcomeMalformed:
		return "Malformed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the classification of one feedback line. Code is set when the
// line parsed as a number, Raw keeps the bytes as received.
type Outcome struct {
	Kind OutcomeKind
	Code int64
	Raw  []byte
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeUnexpectedCode:
		return fmt.Sprintf("UnexpectedCode(%d)", o.Code)
	case OutcomeMalformed:
		return fmt.Sprintf("Malformed(%q)", o.Raw)
	default:
		return o.Kind.String()
	}
}

// Classify interprets a feedback line against a profile's codes. Devices may
// answer in ASCII decimal or as a raw little-endian count depending on the
// firmware mode, so both are tried in that order.
func Classify(raw []byte, p Profile) Outcome {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Outcome{Kind: OutcomeEmpty}
	}

	value, ok := ParseFeedback(raw)
	if !ok {
		return Outcome{Kind: OutcomeMalformed, Raw: raw}
	}

	out := Outcome{Code: value, Raw: raw}
	switch {
	case value == p.SuccessCode:
		out.Kind = OutcomeSuccess
	case value == p.TimeoutCode:
		out.Kind = OutcomeTimeout
	case value == 0 && p.ZeroIsAck:
		out.Kind = OutcomeExpectedZero
	default:
		out.Kind = OutcomeUnexpectedCode
	}
	return out
}

// ParseFeedback decodes a feedback line as a decimal integer, falling back
// to a little-endian unsigned integer of at most eight bytes.
func ParseFeedback(raw []byte) (int64, bool) {
	if utf8.Valid(raw) {
		if v, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return v, true
		}
	}
	return littleEndian(raw)
}

func littleEndian(raw []byte) (int64, bool) {
	if len(raw) == 0 || len(raw) > 8 {
		return 0, false
	}
	var v uint64
	for i := len(raw) - 1; i >= 0; i-- {
		v = v<<8 | uint64(raw[i])
	}
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}
