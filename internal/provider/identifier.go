package provider

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// NormalizeIdentifier returns the canonical form of a reservation or favorite
// identifier: leading/trailing whitespace removed. An empty or whitespace-only
// value normalizes to "", meaning "no usable identifier".
func NormalizeIdentifier(value string) string {
	return strings.TrimSpace(value)
}

// ID decodes a JSON identifier that providers report either as a string or as
// an integer. Anything else (null, floats, objects) decodes to the empty ID.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(NormalizeIdentifier(s))
		return nil
	}
	if n, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*id = ID(strconv.FormatInt(n, 10))
		return nil
	}
	// non-integer number or other token: no usable identifier
	*id = ""
	return nil
}

func (id ID) String() string {
	return string(id)
}
