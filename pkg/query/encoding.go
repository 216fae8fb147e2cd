package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Advanced-Query-Parser/pkg/errors"
)

// Conditions encode as a tagged JSON object:
//
//	{"type":"none"}
//	{"type":"keyword","value":"golang"}
//	{"type":"phrase","value":"type parameters"}
//	{"type":"not","condition":{...}}
//	{"type":"and","conditions":[{...},{...}]}
//	{"type":"or","conditions":[{...},{...}]}
const (
	typeNone    = "none"
	typeKeyword = "keyword"
	typePhrase  = "phrase"
	typeNot     = "not"
	typeAnd     = "and"
	typeOr      = "or"
)

type valueJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type notJSON struct {
	Type      string    `json:"type"`
	Condition Condition `json:"condition"`
}

type operatorJSON struct {
	Type       string      `json:"type"`
	Conditions []Condition `json:"conditions"`
}

// MarshalJSON implements json.Marshaler.
func (None) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"none"}`), nil
}

// MarshalJSON implements json.Marshaler.
func (k Keyword) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Type: typeKeyword, Value: string(k)})
}

// MarshalJSON implements json.Marshaler.
func (p PhraseKeyword) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Type: typePhrase, Value: string(p)})
}

// MarshalJSON implements json.Marshaler.
func (n Not) MarshalJSON() ([]byte, error) {
	return json.Marshal(notJSON{Type: typeNot, Condition: orNone(n.Condition)})
}

// MarshalJSON implements json.Marshaler.
func (o Operator) MarshalJSON() ([]byte, error) {
	conds := make([]Condition, 0, len(o.Conditions))
	for _, c := range o.Conditions {
		conds = append(conds, orNone(c))
	}
	typ := typeAnd
	if o.Op == OpOr {
		typ = typeOr
	}
	return json.Marshal(operatorJSON{Type: typ, Conditions: conds})
}

func orNone(c Condition) Condition {
	if c == nil {
		return None{}
	}
	return c
}

// Decode reads a condition from its JSON encoding. A JSON null decodes to
// None.
func Decode(data []byte) (Condition, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return None{}, nil
	}
	var w struct {
		Type       string            `json:"type"`
		Value      string            `json:"value"`
		Condition  json.RawMessage   `json:"condition"`
		Conditions []json.RawMessage `json:"conditions"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding condition: %w", err)
	}
	switch w.Type {
	case typeNone:
		return None{}, nil
	case typeKeyword:
		return Keyword(w.Value), nil
	case typePhrase:
		return PhraseKeyword(w.Value), nil
	case typeNot:
		inner, err := Decode(w.Condition)
		if err != nil {
			return nil, err
		}
		return Not{Condition: inner}, nil
	case typeAnd, typeOr:
		conds := make([]Condition, 0, len(w.Conditions))
		for _, raw := range w.Conditions {
			c, err := Decode(raw)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		if w.Type == typeOr {
			return Or(conds...), nil
		}
		return And(conds...), nil
	default:
		return nil, fmt.Errorf("%w: unknown condition type %q", apperrors.ErrInvalidInput, w.Type)
	}
}

// JSONCondition carries a Condition through encoding/json, which cannot
// decode into an interface on its own.
type JSONCondition struct {
	Condition Condition
}

// MarshalJSON implements json.Marshaler.
func (j JSONCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(orNone(j.Condition))
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONCondition) UnmarshalJSON(data []byte) error {
	c, err := Decode(data)
	if err != nil {
		return err
	}
	j.Condition = c
	return nil
}
