/**
 * Transcription confidence estimator for the HealthScan scan worker
 *
 * Engines' self-reported confidences are not comparable across engines and
 * are frequently absent, so every candidate transcription is scored by this
 * one shared, deterministic heuristic instead. The same function serves both
 * winner selection and post-hoc auditing.
 */

package confidence

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	baseScore = 35.0
	maxScore  = 95.0 // never report absolute certainty
)

// clinicalTerms is the domain vocabulary whose presence marks report-like text.
var clinicalTerms = []string{
	"hemoglobin", "haemoglobin", "glucose", "cholesterol", "triglycerides",
	"creatinine", "urea", "bilirubin", "albumin", "protein", "platelet",
	"leukocyte", "lymphocyte", "neutrophil", "eosinophil", "monocyte",
	"hematocrit", "erythrocyte", "serum", "plasma", "reference", "specimen",
	"laboratory", "pathology", "thyroid", "vitamin", "calcium", "sodium",
	"potassium", "ferritin", "hdl", "ldl", "tsh", "esr",
}

// clinicalUnits are measurement units recognized in laboratory reports.
var clinicalUnits = []string{
	"mg/dl", "g/dl", "mmol/l", "µmol/l", "umol/l", "u/l", "iu/l", "miu/l",
	"ng/ml", "pg/ml", "µg/dl", "ug/dl", "meq/l", "cells/µl", "cells/ul",
	"thou/µl", "mill/µl", "fl", "pg", "%", "mm/hr",
}

// corruptionMarkers are symbol runs typical of recognition failure.
var corruptionMarkers = []*regexp.Regexp{
	regexp.MustCompile(`##+`),
	regexp.MustCompile(`\|\|+`),
	regexp.MustCompile(`\?\?+`),
	regexp.MustCompile(`\*\*+`),
	regexp.MustCompile(`~~+`),
	regexp.MustCompile(`@@+`),
}

var numberToken = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// Estimate scores a transcription's plausibility as clinical-report text.
// Pure and deterministic; returns 0 for empty input and a value in [0,95]
// otherwise. Self-reported engine confidence plays no part here.
func Estimate(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	score := baseScore
	lower := strings.ToLower(trimmed)
	words := strings.Fields(trimmed)

	// Word-length distribution: OCR noise skews average token length far
	// outside the 3-12 character band of real prose.
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len([]rune(w))
		}
		avg := float64(total) / float64(len(words))
		if avg >= 3 && avg <= 12 {
			score += 10
		}
	}

	// Domain vocabulary, capped bonus scaled by distinct terms found.
	termsFound := 0
	for _, term := range clinicalTerms {
		if strings.Contains(lower, term) {
			termsFound++
		}
	}
	score += capBonus(float64(termsFound)*2.5, 15)

	// Numeric density: lab reports are numerically dense.
	numbers := len(numberToken.FindAllString(trimmed, -1))
	switch {
	case numbers > 15:
		score += 15
	case numbers > 8:
		score += 10
	case numbers > 3:
		score += 5
	}

	// Recognized clinical units.
	unitsFound := 0
	for _, unit := range clinicalUnits {
		if strings.Contains(lower, unit) {
			unitsFound++
		}
	}
	score += capBonus(float64(unitsFound)*2.5, 10)

	// Structural punctuation relative to word count.
	punct := strings.Count(trimmed, ":") + strings.Count(trimmed, "(") +
		strings.Count(trimmed, ")") + strings.Count(trimmed, "/") +
		strings.Count(trimmed, "-")
	if len(words) > 0 && float64(punct)/float64(len(words)) > 0.2 {
		score += 5
	}

	// Proper-noun-like capitalization in a plausible band.
	capitalized := 0
	for _, w := range words {
		r := []rune(w)
		if unicode.IsUpper(r[0]) {
			capitalized++
		}
	}
	if len(words) > 0 {
		ratio := float64(capitalized) / float64(len(words))
		if ratio >= 0.10 && ratio <= 0.60 {
			score += 5
		}
	}

	// Corruption markers: each marker type found is a heavy penalty.
	for _, marker := range corruptionMarkers {
		if marker.MatchString(trimmed) {
			score -= 20
		}
	}

	// Excessive ratio of characters that are neither alphanumeric nor the
	// structural punctuation normal in reports.
	suspect, runes := 0, 0
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		runes++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		if strings.ContainsRune(`.,:;()[]/-%+='"<>`, r) {
			continue
		}
		suspect++
	}
	if runes > 0 && float64(suspect)/float64(runes) > 0.10 {
		score -= 25
	}

	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

func capBonus(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}
