/**
 * Structured measurement types for the HealthScan scan worker
 */

package metrics

// Flag is the abnormality classification of a measured value relative to its
// reference range.
type Flag string

const (
	FlagLow      Flag = "LOW"
	FlagNormal   Flag = "NORMAL"
	FlagHigh     Flag = "HIGH"
	FlagCritical Flag = "CRITICAL"
)

// Range is a closed numeric reference interval.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// HealthMetric is one extracted clinical measurement. Never mutated after
// creation; identity for deduplication is (Name, Value) with Value compared
// under 1% relative tolerance.
type HealthMetric struct {
	Category             string  `json:"category"`
	Name                 string  `json:"name"`
	Value                float64 `json:"value"`
	Unit                 string  `json:"unit,omitempty"`
	Flag                 Flag    `json:"flag"`
	NormalRange          *Range  `json:"normalRange,omitempty"`
	ExtractionConfidence float64 `json:"extractionConfidence"`
	ExtractionMethod     string  `json:"extractionMethod"`
}
