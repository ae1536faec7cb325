package model

import (
	"strings"
)

// PatientRecord is the latest submission for a phone number. Re-submitting
// under the same phone overwrites everything except id, phone and createdAt.
type PatientRecord struct {
	Base
	Name       string     `db:"name" json:"name"`
	Phone      string     `db:"phone" json:"phone"`
	Address    string     `db:"address" json:"address"`
	Symptoms   string     `db:"symptoms" json:"symptoms"`
	Prediction Prediction `db:"prediction" json:"prediction"`
}

// PredictRequest is the body of a prediction submission.
type PredictRequest struct {
	Name     string `json:"name" binding:"required,notblank"`
	Phone    string `json:"phone" binding:"required,notblank"`
	Address  string `json:"address" binding:"required,notblank"`
	Symptoms string `json:"symptoms" binding:"required,notblank"`
}

// Normalize trims surrounding whitespace from every field.
func (r *PredictRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)
	r.Symptoms = strings.TrimSpace(r.Symptoms)
}

// Valid reports whether every field is non-empty after trimming.
func (r PredictRequest) Valid() bool {
	for _, v := range []string{r.Name, r.Phone, r.Address, r.Symptoms} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// HistoryQuery selects records by name and phone.
type HistoryQuery struct {
	Name  string `form:"name" binding:"required,notblank"`
	Phone string `form:"phone" binding:"required,notblank"`
}
