package transcript

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseCue converts a raw cue value from the data layer into a typed
// optional number of seconds. Cue fields arrive as float64, string or null
// depending on the producer; non-numeric or empty values become nil so that
// untyped data never reaches the cue index.
func ParseCue(raw any) *float64 {
	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		return validCue(v)
	case float32:
		return validCue(float64(v))
	case int:
		return validCue(float64(v))
	case int64:
		return validCue(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return validCue(f)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return validCue(f)
	default:
		return nil
	}
}

func validCue(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FormatCue is the inverse boundary step: a nil cue serializes as null, a
// present one as its decimal string.
func FormatCue(cue *float64) *string {
	if cue == nil {
		return nil
	}
	s := strconv.FormatFloat(*cue, 'f', -1, 64)
	return &s
}
