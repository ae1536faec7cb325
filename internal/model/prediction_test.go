package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrediction_KeepsProviderDocument(t *testing.T) {
	body := `{
		"diseases": [{
			"disease": "Bronchitis",
			"accuracy": "90%",
			"icd10": "J20",
			"medications": ["Paracetamol", {"name": "Ibuprofen", "dosage": "200mg"}],
			"precautions": ["Rest"]
		}],
		"recommendations": ["See a doctor.", "Hydrate."],
		"urgency": "high"
	}`

	p, err := NewPrediction([]byte(body))
	require.NoError(t, err)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}

func TestNewPrediction_RequiresObject(t *testing.T) {
	for _, in := range []string{``, `  `, `null`, `[1,2]`, `"flu"`, `42`, `{"diseases":`, `{} {}`} {
		_, err := NewPrediction([]byte(in))
		assert.ErrorIs(t, err, ErrPredictionNotObject, "input %q", in)
	}

	p, err := NewPrediction([]byte("  {\"a\":1}\n"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(p))
}

func TestNewPrediction_CopiesInput(t *testing.T) {
	src := []byte(`{"a":1}`)
	p, err := NewPrediction(src)
	require.NoError(t, err)
	src[5] = '2'
	assert.Equal(t, `{"a":1}`, string(p))
}

func TestPrediction_EmbeddedInRecord(t *testing.T) {
	rec := PatientRecord{Name: "Asha", Prediction: Prediction(`{"diseases":[],"extra":true}`)}
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"prediction":{"diseases":[],"extra":true}`)

	var back PatientRecord
	require.NoError(t, json.Unmarshal(out, &back))
	assert.JSONEq(t, `{"diseases":[],"extra":true}`, string(back.Prediction))

	empty, err := json.Marshal(PatientRecord{})
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"prediction":null`)
}

func TestPrediction_ValueAndScan(t *testing.T) {
	p := FallbackPrediction()

	v, err := p.Value()
	require.NoError(t, err)
	s, ok := v.(string)
	require.True(t, ok)

	var fromString, fromBytes Prediction
	require.NoError(t, fromString.Scan(s))
	require.NoError(t, fromBytes.Scan([]byte(s)))
	assert.Equal(t, p, fromString)
	assert.Equal(t, p, fromBytes)

	var empty Prediction
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	assert.Error(t, empty.Scan(42))
	assert.ErrorIs(t, empty.Scan("[1]"), ErrPredictionNotObject)
}

func TestFallbackPrediction(t *testing.T) {
	out, err := json.Marshal(FallbackPrediction())
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"diseases":[{"disease":"Flu","accuracy":85},{"disease":"Common Cold","accuracy":70}],"recommendations":"Rest and drink fluids."}`,
		string(out))

	a := FallbackPrediction()
	a[0] = 'X'
	assert.JSONEq(t, string(out), string(FallbackPrediction()))

	c := FallbackPrediction().Clone()
	c[0] = 'X'
	assert.True(t, json.Valid(FallbackPrediction()))
}

func TestPredictRequest_NormalizeAndValid(t *testing.T) {
	req := PredictRequest{Name: "  Asha ", Phone: "555-0101", Address: "12 Elm St", Symptoms: "\tfever and cough\n"}
	assert.True(t, req.Valid())
	req.Normalize()
	assert.Equal(t, "Asha", req.Name)
	assert.Equal(t, "fever and cough", req.Symptoms)

	assert.False(t, PredictRequest{Name: "Asha", Phone: " ", Address: "x", Symptoms: "y"}.Valid())
}

func TestPagination_Normalize(t *testing.T) {
	p := Pagination{Page: 0, PageSize: 1000}
	p.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxPageSize, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = Pagination{Page: 3, PageSize: 0}
	p.Normalize()
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, 40, p.Offset())
}
