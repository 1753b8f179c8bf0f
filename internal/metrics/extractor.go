/**
 * Metric extractor for the HealthScan scan worker
 *
 * Parses raw transcribed text into typed measurements using an ordered set
 * of line grammars. Never errors on malformed input: unparseable lines are
 * skipped, and zero metrics is a valid result.
 */

package metrics

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultMinConfidence = 40.0
	defaultMaxMetrics    = 100

	maxMetricConfidence = 95.0
	maxPlausibleValue   = 10000000 // values at or above this are absurd for lab work
	dedupTolerance      = 0.01     // 1% relative tolerance on value identity
)

// ExtractorConfig tunes acceptance; zero values use defaults.
type ExtractorConfig struct {
	// MinConfidence is the acceptance threshold for a candidate metric.
	MinConfidence float64
	// MaxMetrics caps the output to bound downstream cost.
	MaxMetrics int
	Resolver   *Resolver
}

// Extractor parses transcriptions into HealthMetric records.
type Extractor struct {
	minConfidence float64
	maxMetrics    int
	resolver      *Resolver
}

// NewExtractor creates an extractor. A nil Resolver gets the default policy.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	e := &Extractor{
		minConfidence: cfg.MinConfidence,
		maxMetrics:    cfg.MaxMetrics,
		resolver:      cfg.Resolver,
	}
	if e.minConfidence <= 0 {
		e.minConfidence = defaultMinConfidence
	}
	if e.maxMetrics <= 0 {
		e.maxMetrics = defaultMaxMetrics
	}
	if e.resolver == nil {
		e.resolver = NewResolver(ResolverConfig{})
	}
	return e
}

// Regex fragments shared by the grammars.
const (
	reNum  = `(\d+(?:[.,]\d+)?)`
	reUnit = `([A-Za-zµ%][\w/µ%.]*)`
)

// lineGrammar is one recognized line shape. Grammars are tried in order and
// the first match wins for a line; the base confidence reflects how much the
// shape itself constrains misreads.
type lineGrammar struct {
	method string
	base   float64
	re     *regexp.Regexp
}

var grammars = []lineGrammar{
	// 1. Name Value Unit [(min-max)] — e.g. "Hemoglobin: 9.5 g/dL [12.0-16.0]"
	{
		method: "name-value-unit-range",
		base:   75,
		re: regexp.MustCompile(`^([A-Za-z][A-Za-z .\-/]*?):?\s+` + reNum + `\s*` + reUnit +
			`\s*(?:[(\[]\s*` + reNum + `\s*(?:[-–—~]|to)\s*` + reNum + `\s*[)\]])?$`),
	},
	// 2. Name: Value Unit — colon-delimited, looser name charset
	{
		method: "colon-delimited",
		base:   65,
		re:     regexp.MustCompile(`^([^:]{2,40}):\s*` + reNum + `\s*` + reUnit + `$`),
	},
	// 3. Name  Value  Unit  Min-Max — table/column layout
	{
		method: "table-columns",
		base:   60,
		re: regexp.MustCompile(`^([A-Za-z][\w .\-/()]*?)(?:\s{2,}|\t+)\s*` + reNum +
			`\s+` + reUnit + `\s+` + reNum + `\s*[-–—]\s*` + reNum + `$`),
	},
	// 4. Name: Value Unit [Normal: Min-Max] — explicitly labeled range
	{
		method: "labeled-range",
		base:   70,
		re: regexp.MustCompile(`(?i)^([^:\[]{2,40}):?\s*` + reNum + `\s*` + reUnit +
			`?\s*[(\[]\s*(?:normal|ref(?:erence)?|range)\s*:?\s*` + reNum + `\s*[-–—]\s*` + reNum + `\s*[)\]]$`),
	},
	// 5. Name Value [Unit] — bare value, lowest-confidence shape
	{
		method: "name-value",
		base:   40,
		re:     regexp.MustCompile(`^([A-Za-z][A-Za-z .\-/]*?):?\s+` + reNum + `\s*` + reUnit + `?$`),
	},
}

var plausibleNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z \-]*$`)

// knownUnits are units recognized in laboratory reports (lowercased).
var knownUnits = []string{
	"mg/dl", "g/dl", "g/l", "mg/l", "mmol/l", "µmol/l", "umol/l", "u/l",
	"iu/l", "miu/l", "ng/ml", "ng/dl", "pg/ml", "µg/dl", "ug/dl", "µg/l",
	"meq/l", "cells/µl", "cells/ul", "thou/µl", "thou/ul", "mill/µl",
	"mill/ul", "lakhs/cumm", "/cumm", "fl", "pg", "%", "mm/hr", "sec", "ratio",
}

// knownParameters are curated laboratory parameter names (lowercased,
// substring match against the extracted name).
var knownParameters = []string{
	"hemoglobin", "haemoglobin", "hematocrit", "glucose", "hba1c",
	"cholesterol", "triglyceride", "hdl", "ldl", "creatinine", "urea",
	"uric acid", "bilirubin", "albumin", "protein", "sgpt", "sgot", "alt",
	"ast", "alkaline phosphatase", "tsh", "t3", "t4", "platelet", "wbc",
	"rbc", "mcv", "mch", "sodium", "potassium", "chloride", "calcium",
	"vitamin d", "vitamin b12", "ferritin", "esr", "crp",
}

type candidate struct {
	name   string
	value  float64
	unit   string
	rng    *Range
	method string
	base   float64
}

// Extract parses text into accepted metrics, deduplicated, sorted by
// extraction confidence descending, and capped. Calling it twice on the same
// text yields identical, order-stable results.
func (e *Extractor) Extract(text string) []HealthMetric {
	accepted := make([]HealthMetric, 0, 16)

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		cand, ok := matchLine(line)
		if !ok {
			continue
		}

		conf := e.scoreCandidate(cand)
		if conf < e.minConfidence {
			continue
		}

		if isDuplicate(accepted, cand.name, cand.value) {
			continue
		}

		rng := cand.rng
		if rng == nil {
			if builtin, found := e.resolver.NormalRangeFor(cand.name); found {
				rng = &builtin
			}
		}

		accepted = append(accepted, HealthMetric{
			Category:             e.resolver.Categorize(cand.name),
			Name:                 cand.name,
			Value:                cand.value,
			Unit:                 cand.unit,
			Flag:                 e.resolver.Flag(cand.name, cand.value, cand.rng),
			NormalRange:          rng,
			ExtractionConfidence: conf,
			ExtractionMethod:     cand.method,
		})
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].ExtractionConfidence > accepted[j].ExtractionConfidence
	})

	if len(accepted) > e.maxMetrics {
		accepted = accepted[:e.maxMetrics]
	}
	return accepted
}

// matchLine tries the grammars in order; first match wins for the line.
func matchLine(line string) (candidate, bool) {
	for _, g := range grammars {
		m := g.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		value, ok := parseNumber(m[2])
		if !ok {
			continue
		}

		cand := candidate{
			name:   cleanName(m[1]),
			value:  value,
			method: g.method,
			base:   g.base,
		}

		switch g.method {
		case "name-value-unit-range", "labeled-range":
			cand.unit = m[3]
			if m[4] != "" && m[5] != "" {
				cand.rng = parseRange(m[4], m[5])
			}
		case "table-columns":
			cand.unit = m[3]
			cand.rng = parseRange(m[4], m[5])
		case "colon-delimited":
			cand.unit = m[3]
		case "name-value":
			cand.unit = m[3]
		}

		return cand, true
	}
	return candidate{}, false
}

// scoreCandidate seeds confidence from the grammar and adjusts for field
// plausibility, clamped to [0,95]. Non-positive and non-finite values are
// rejected outright (score 0).
func (e *Extractor) scoreCandidate(c candidate) float64 {
	if c.value <= 0 || math.IsNaN(c.value) || math.IsInf(c.value, 0) {
		return 0
	}

	conf := c.base

	if nameLen := len(c.name); plausibleNamePattern.MatchString(c.name) && nameLen >= 3 && nameLen <= 30 {
		conf += 8
	} else {
		conf -= 10
	}

	if c.value < maxPlausibleValue {
		conf += 5
	} else {
		conf -= 25
	}

	if c.unit == "" {
		conf -= 10
	} else if isKnownUnit(c.unit) {
		conf += 8
	}

	if isKnownParameter(c.name) {
		conf += 10
	}

	if conf < 0 {
		return 0
	}
	if conf > maxMetricConfidence {
		return maxMetricConfidence
	}
	return conf
}

func isDuplicate(accepted []HealthMetric, name string, value float64) bool {
	for _, m := range accepted {
		if !strings.EqualFold(m.Name, name) {
			continue
		}
		larger := math.Max(math.Abs(m.Value), math.Abs(value))
		if larger == 0 || math.Abs(m.Value-value) <= dedupTolerance*larger {
			return true
		}
	}
	return false
}

func isKnownUnit(unit string) bool {
	u := strings.ToLower(unit)
	for _, k := range knownUnits {
		if u == k {
			return true
		}
	}
	return false
}

func isKnownParameter(name string) bool {
	n := strings.ToLower(name)
	for _, p := range knownParameters {
		if strings.Contains(n, p) {
			return true
		}
	}
	return false
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseRange(lowStr, highStr string) *Range {
	low, okLow := parseNumber(lowStr)
	high, okHigh := parseNumber(highStr)
	if !okLow || !okHigh || high <= low {
		return nil
	}
	return &Range{Low: low, High: high}
}

func cleanName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.TrimSuffix(name, ":")
	return strings.Join(strings.Fields(name), " ")
}
