package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Numeric is a form value that clients and the API send either as a JSON
// number or as a string ("1.500.000", 1500000). It is kept as text.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Numeric(s)
		return nil
	default:
		var num json.Number
		if err := json.Unmarshal(b, &num); err != nil {
			return fmt.Errorf("numeric field: %w", err)
		}
		*n = Numeric(num.String())
		return nil
	}
}

// Digits strips everything but 0-9, "0" when nothing is left.
func (n Numeric) Digits() string {
	d := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, string(n))
	if d == "" {
		return "0"
	}
	return d
}

// Int64 is the digit value of n, 0 when it overflows or is empty.
func (n Numeric) Int64() int64 {
	v, err := strconv.ParseInt(n.Digits(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
