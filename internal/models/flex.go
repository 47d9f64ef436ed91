package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ID is an identifier that accepts both JSON strings and JSON numbers.
// Admin pickers send numeric post ids while the API uses string ids.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	// {"value": 12, "label": "..."} from ajax-select inputs
	if len(b) > 0 && b[0] == '{' {
		var opt struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(b, &opt); err != nil {
			return err
		}
		if len(opt.Value) == 0 {
			*id = ""
			return nil
		}
		return id.UnmarshalJSON(opt.Value)
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Quantity is serialized as {"value": n} like the admin editor does, but a
// bare number or numeric string is accepted on input.
type Quantity int

type quantityEnvelope struct {
	Value int `json:"value"`
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(quantityEnvelope{Value: int(q)})
}

func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*q = 0
		return nil
	case len(b) > 0 && b[0] == '{':
		var env struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(b, &env); err != nil {
			return err
		}
		if len(env.Value) == 0 {
			*q = 0
			return nil
		}
		return q.UnmarshalJSON(env.Value)
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*q = 0
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		*q = Quantity(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	*q = Quantity(int(f))
	return nil
}
