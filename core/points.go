package core

import "unicode/utf8"

// PointsTable parameterizes the per-report award.
type PointsTable struct {
	Base          int64              `json:"base"`
	SeverityBonus map[Severity]int64 `json:"severity_bonus"`
	ImageBonus    int64              `json:"image_bonus"`
	DetailBonus   int64              `json:"detail_bonus"`
	// DetailMinLen is exclusive: descriptions longer than this earn DetailBonus.
	DetailMinLen int `json:"detail_min_len"`
}

// DefaultPointsTable is the award table used in production.
// Critical reports earn their own tier above high.
func DefaultPointsTable() PointsTable {
	return PointsTable{
		Base: 10,
		SeverityBonus: map[Severity]int64{
			SeverityLow:      5,
			SeverityMedium:   10,
			SeverityHigh:     15,
			SeverityCritical: 20,
		},
		ImageBonus:   5,
		DetailBonus:  5,
		DetailMinLen: 100,
	}
}

// Compute returns the award for a single submitted report. Unknown
// severities contribute no bonus.
func (t PointsTable) Compute(r Report) int64 {
	points := t.Base
	points += t.SeverityBonus[r.Severity]
	if r.HasImages() {
		points += t.ImageBonus
	}
	if utf8.RuneCountInString(r.Description) > t.DetailMinLen {
		points += t.DetailBonus
	}
	return points
}

// ComputeReportPoints scores r with DefaultPointsTable.
func ComputeReportPoints(r Report) int64 {
	return DefaultPointsTable().Compute(r)
}
