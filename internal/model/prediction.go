package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPredictionNotObject is returned when a prediction document is not a JSON object.
var ErrPredictionNotObject = errors.New("prediction must be a JSON object")

// Prediction is the provider's answer kept as the JSON object it returned.
// Its shape belongs to the provider; it is stored and served without being
// reinterpreted, so fields this service does not know about survive.
type Prediction json.RawMessage

const fallbackPrediction = `{"diseases":[{"disease":"Flu","accuracy":85},{"disease":"Common Cold","accuracy":70}],"recommendations":"Rest and drink fluids."}`

// NewPrediction accepts data when it is a single JSON object and returns a copy.
func NewPrediction(data []byte) (Prediction, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' || !json.Valid(data) {
		return nil, ErrPredictionNotObject
	}
	return append(Prediction(nil), data...), nil
}

// FallbackPrediction is served whenever the provider cannot produce a usable
// answer. Each call returns a fresh value.
func FallbackPrediction() Prediction {
	return Prediction(fallbackPrediction)
}

// Clone returns a copy that shares no memory with p.
func (p Prediction) Clone() Prediction {
	if p == nil {
		return nil
	}
	return append(Prediction(nil), p...)
}

func (p Prediction) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *Prediction) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	v, err := NewPrediction(data)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Value stores the prediction as JSONB. lib/pq sends []byte as bytea, so the
// document goes out as text.
func (p Prediction) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return string(p), nil
}

// Scan reads a JSONB prediction column.
func (p *Prediction) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into Prediction", src)
	}
}
