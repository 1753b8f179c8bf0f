/**
 * Clinical reference resolver for the HealthScan scan worker
 *
 * Categorizes metric names into clinical domains and determines abnormality
 * flags against an extracted or built-in reference range. Pure and total:
 * always returns a flag, never errors.
 */

package metrics

import "strings"

const (
	// CategoryGeneral is the fallback for names matching no clinical domain.
	CategoryGeneral = "General"

	defaultCriticalLowRatio  = 0.6
	defaultCriticalHighRatio = 1.5
)

// ResolverConfig carries the critical-threshold policy. Zero values fall back
// to the defaults (0.6x below the low bound, 1.5x above the high bound).
type ResolverConfig struct {
	CriticalLowRatio  float64
	CriticalHighRatio float64
}

// Resolver maps metric names to categories and values to flags.
type Resolver struct {
	criticalLowRatio  float64
	criticalHighRatio float64
}

// NewResolver creates a resolver with the given critical-threshold policy.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		criticalLowRatio:  cfg.CriticalLowRatio,
		criticalHighRatio: cfg.CriticalHighRatio,
	}
	if r.criticalLowRatio <= 0 || r.criticalLowRatio >= 1 {
		r.criticalLowRatio = defaultCriticalLowRatio
	}
	if r.criticalHighRatio <= 1 {
		r.criticalHighRatio = defaultCriticalHighRatio
	}
	return r
}

// categoryEntry pairs a clinical domain with the keywords that select it.
// Entries are checked in order; the first keyword hit wins.
type categoryEntry struct {
	name     string
	keywords []string
}

var categoryTable = []categoryEntry{
	{"Blood Count", []string{"hemoglobin", "haemoglobin", "hematocrit", "haematocrit", "rbc", "wbc", "platelet", "mcv", "mch", "mchc", "rdw", "neutrophil", "lymphocyte", "monocyte", "eosinophil", "basophil", "erythrocyte", "leukocyte"}},
	{"Metabolic", []string{"glucose", "hba1c", "a1c", "insulin", "fructosamine"}},
	{"Lipid Panel", []string{"cholesterol", "triglyceride", "hdl", "ldl", "vldl", "lipoprotein"}},
	{"Kidney", []string{"creatinine", "urea", "bun", "uric acid", "egfr", "cystatin"}},
	{"Liver", []string{"bilirubin", "sgpt", "sgot", "alt", "ast", "alkaline phosphatase", "alp", "ggt", "albumin", "globulin"}},
	{"Thyroid", []string{"tsh", "thyroxine", "triiodothyronine", "t3", "t4", "thyroglobulin"}},
	{"Vitamins & Minerals", []string{"vitamin", "ferritin", "iron", "folate", "folic", "zinc", "magnesium", "b12"}},
	{"Cardiac", []string{"troponin", "ck-mb", "cpk", "bnp", "myoglobin"}},
	{"Hormones", []string{"testosterone", "estrogen", "estradiol", "progesterone", "cortisol", "prolactin", "fsh", "lh", "dhea"}},
	{"Inflammation", []string{"crp", "c-reactive", "esr", "sedimentation", "procalcitonin", "interleukin"}},
	{"Coagulation", []string{"prothrombin", "inr", "aptt", "fibrinogen", "d-dimer"}},
	{"Electrolytes", []string{"sodium", "potassium", "chloride", "calcium", "phosphorus", "phosphate", "bicarbonate"}},
	{"Tumor Markers", []string{"psa", "cea", "ca-125", "ca 125", "ca 19-9", "afp", "alpha-fetoprotein"}},
}

// refEntry is one built-in reference range, keyed by normalized parameter
// name; matched by substring. Critical bounds, where present, override the
// ratio policy.
type refEntry struct {
	key          string
	min, max     float64
	criticalLow  float64 // 0 = unset
	criticalHigh float64 // 0 = unset
}

var referenceTable = []refEntry{
	{key: "hemoglobin", min: 12.0, max: 16.0, criticalLow: 7.0, criticalHigh: 20.0},
	{key: "haemoglobin", min: 12.0, max: 16.0, criticalLow: 7.0, criticalHigh: 20.0},
	{key: "hematocrit", min: 36, max: 46, criticalLow: 21},
	{key: "glucose", min: 70, max: 100, criticalLow: 40, criticalHigh: 400},
	{key: "hba1c", min: 4.0, max: 5.7, criticalHigh: 10.0},
	{key: "cholesterol", min: 125, max: 200, criticalHigh: 300},
	{key: "triglyceride", min: 0, max: 150, criticalHigh: 500},
	{key: "hdl", min: 40, max: 60},
	{key: "ldl", min: 0, max: 100, criticalHigh: 190},
	{key: "creatinine", min: 0.6, max: 1.2, criticalHigh: 4.0},
	{key: "urea", min: 7, max: 20},
	{key: "uric acid", min: 3.5, max: 7.2},
	{key: "bilirubin", min: 0.1, max: 1.2, criticalHigh: 12.0},
	{key: "albumin", min: 3.4, max: 5.4},
	{key: "sgpt", min: 7, max: 56},
	{key: "sgot", min: 10, max: 40},
	{key: "alt", min: 7, max: 56},
	{key: "ast", min: 10, max: 40},
	{key: "alkaline phosphatase", min: 44, max: 147},
	{key: "tsh", min: 0.4, max: 4.0, criticalHigh: 20.0},
	{key: "platelet", min: 150, max: 450, criticalLow: 50, criticalHigh: 1000},
	{key: "wbc", min: 4.0, max: 11.0, criticalLow: 2.0, criticalHigh: 30.0},
	{key: "rbc", min: 4.2, max: 5.9},
	{key: "sodium", min: 136, max: 145, criticalLow: 120, criticalHigh: 160},
	{key: "potassium", min: 3.5, max: 5.1, criticalLow: 2.5, criticalHigh: 6.5},
	{key: "chloride", min: 98, max: 107},
	{key: "calcium", min: 8.5, max: 10.5, criticalLow: 6.0, criticalHigh: 13.0},
	{key: "vitamin d", min: 30, max: 100, criticalLow: 10},
	{key: "vitamin b12", min: 200, max: 900},
	{key: "ferritin", min: 12, max: 300},
	{key: "esr", min: 0, max: 20},
	{key: "crp", min: 0, max: 10, criticalHigh: 100},
}

// Categorize maps a metric name to its clinical domain, falling back to
// "General" when no keyword matches.
func (r *Resolver) Categorize(name string) string {
	norm := normalizeName(name)
	for _, entry := range categoryTable {
		for _, kw := range entry.keywords {
			if strings.Contains(norm, kw) {
				return entry.name
			}
		}
	}
	return CategoryGeneral
}

// Flag determines the abnormality flag for a value. An explicitly extracted
// range wins over the built-in table; with neither available the policy is to
// assume benign and report NORMAL.
func (r *Resolver) Flag(name string, value float64, explicit *Range) Flag {
	if explicit != nil && explicit.High > explicit.Low {
		return r.flagAgainst(value, explicit.Low, explicit.High, 0, 0)
	}

	if entry, ok := r.referenceFor(name); ok {
		return r.flagAgainst(value, entry.min, entry.max, entry.criticalLow, entry.criticalHigh)
	}

	return FlagNormal
}

// NormalRangeFor returns the built-in reference range for a parameter name,
// when one exists.
func (r *Resolver) NormalRangeFor(name string) (Range, bool) {
	entry, ok := r.referenceFor(name)
	if !ok {
		return Range{}, false
	}
	return Range{Low: entry.min, High: entry.max}, true
}

func (r *Resolver) referenceFor(name string) (refEntry, bool) {
	norm := normalizeName(name)
	for _, entry := range referenceTable {
		if strings.Contains(norm, entry.key) {
			return entry, true
		}
	}
	return refEntry{}, false
}

func (r *Resolver) flagAgainst(value, low, high, criticalLow, criticalHigh float64) Flag {
	if value < low {
		threshold := low * r.criticalLowRatio
		if criticalLow > 0 {
			threshold = criticalLow
		}
		if value < threshold {
			return FlagCritical
		}
		return FlagLow
	}
	if value > high {
		threshold := high * r.criticalHighRatio
		if criticalHigh > 0 {
			threshold = criticalHigh
		}
		if value > threshold {
			return FlagCritical
		}
		return FlagHigh
	}
	return FlagNormal
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
