package cloudage

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	outputField  = "Output"
	outputsField = "Outputs"
)

// Extract pulls the output bitmask out of a decoded envelope. It reports
// false when the envelope carries no usable bitmask, which callers treat as
// "no update".
func Extract(env Envelope) (uint64, bool) {
	output, ok := env.Merged[outputField].(map[string]any)
	if !ok {
		return 0, false
	}
	raw, ok := output[outputsField]
	if !ok {
		return 0, false
	}
	return coerceBitmask(raw)
}

// coerceBitmask accepts anything that reads as an integer. Negative values
// keep their two's complement bits, so -1 drives every output on, and
// booleans count as 1 and 0.
func coerceBitmask(v any) (uint64, bool) {
	switch n := v.(type) {
	case json.Number:
		return parseInteger(n.String(), true)
	case float64:
		return floatBitmask(n)
	case string:
		return parseInteger(strings.TrimSpace(n), false)
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func parseInteger(s string, allowFloat bool) (uint64, bool) {
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u, true
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return uint64(i), true
	}
	if !allowFloat {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatBitmask(f)
}

// floatBitmask truncates toward zero, the way the controllers' own tooling
// reads a float-encoded mask.
func floatBitmask(f float64) (uint64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxUint64 || f < math.MinInt64 {
		return 0, false
	}
	if f < 0 {
		return uint64(int64(math.Trunc(f))), true
	}
	return uint64(math.Trunc(f)), true
}
