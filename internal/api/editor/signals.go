package editor

import (
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
)

// Signals provides type-safe access to Datastar signal values. Datastar
// sends all signals as a flat JSON object in the request body; names are
// lowercase due to data-bind behavior.
type Signals map[string]any

// ParseSignals parses Datastar signals from a raw request body.
func ParseSignals(body []byte) (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns a string signal value, or empty string if not found.
func (s Signals) String(key string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// Bool returns a bool signal value, or false if not found.
func (s Signals) Bool(key string) bool {
	if v, ok := s[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// Strings returns every string-valued signal whose name starts with the
// prefix, keyed by the remainder of the name. The attribute form posts its
// inputs as attr_<field> signals.
func (s Signals) Strings(prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range s {
		if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		switch t := v.(type) {
		case string:
			out[k[len(prefix):]] = t
		case float64:
			b, _ := json.Marshal(t)
			out[k[len(prefix):]] = string(b)
		}
	}
	return out
}

// SignalsInput is a reusable Huma input for handlers receiving Datastar
// signals; the raw body must be captured before streaming starts.
type SignalsInput struct {
	RawBody []byte
}

// MustParse parses signals or returns a Huma 400 error.
func (i *SignalsInput) MustParse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}
