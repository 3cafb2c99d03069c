package core

import (
	"errors"
	"fmt"
	"time"
)

// Severity grades the observed damage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DamageType classifies a report.
type DamageType string

const (
	DamageDeforestation   DamageType = "deforestation"
	DamagePollution       DamageType = "pollution"
	DamageNaturalDisaster DamageType = "natural_disaster"
	DamageEncroachment    DamageType = "encroachment"
	DamageOther           DamageType = "other"
)

// ReportStatus is the administrative triage state of a report.
type ReportStatus string

const (
	StatusPending       ReportStatus = "pending"
	StatusInvestigating ReportStatus = "investigating"
	StatusResolved      ReportStatus = "resolved"
	StatusRejected      ReportStatus = "rejected"
)

var ErrInvalidTransition = errors.New("invalid report status transition")

// transitions lists the allowed forward moves; resolved and rejected are terminal.
var transitions = map[ReportStatus][]ReportStatus{
	StatusPending:       {StatusInvestigating, StatusResolved, StatusRejected},
	StatusInvestigating: {StatusResolved, StatusRejected},
}

// ValidateTransition returns ErrInvalidTransition unless from -> to is allowed.
func ValidateTransition(from, to ReportStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Location is where the damage was observed. Address doubles as the
// label for the unique-location counter.
type Location struct {
	Address     string     `json:"address" validate:"required"`
	Coordinates [2]float64 `json:"coordinates"` // longitude, latitude
}

// Report is a user-submitted damage report. Inputs reaching the rules
// engine are assumed to be validated already.
type Report struct {
	ID          string       `json:"id"`
	UserID      UserID       `json:"user_id" validate:"required"`
	Location    Location     `json:"location" validate:"required"`
	DamageType  DamageType   `json:"damage_type" validate:"required,oneof=deforestation pollution natural_disaster encroachment other"`
	Description string       `json:"description" validate:"required"`
	Severity    Severity     `json:"severity" validate:"required,oneof=low medium high critical"`
	Images      []string     `json:"images" validate:"dive,required"`
	Status      ReportStatus `json:"status,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// HasImages reports whether the report carries photo evidence.
func (r Report) HasImages() bool { return len(r.Images) > 0 }
