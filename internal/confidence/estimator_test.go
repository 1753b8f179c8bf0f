package confidence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleReport = `Hemoglobin: 9.5 g/dL [12.0-16.0]
Glucose: 150 mg/dL
Platelet Count: 250 thou/µl
Serum Creatinine: 1.0 mg/dL
TSH: 2.5 mIU/L`

func TestEstimateEmptyInput(t *testing.T) {
	assert.Equal(t, 0.0, Estimate(""))
	assert.Equal(t, 0.0, Estimate("   \n\t  "))
}

func TestEstimateRange(t *testing.T) {
	inputs := []string{
		sampleReport,
		"a",
		"###@@@###||| ??? ***",
		strings.Repeat("Hemoglobin 13.5 g/dL mg/dL mmol/L 1 2 3 4 5 6 7 8 9 ", 20),
		"single",
	}
	for _, in := range inputs {
		score := Estimate(in)
		assert.GreaterOrEqual(t, score, 0.0, "input: %q", in)
		assert.LessOrEqual(t, score, 95.0, "input: %q", in)
	}
}

func TestEstimateClinicalTextScoresHigh(t *testing.T) {
	score := Estimate(sampleReport)
	assert.Greater(t, score, 60.0)
}

func TestEstimateGarbledTextScoresLow(t *testing.T) {
	score := Estimate("###@@@###||| ??? *** ~~noise~~ ##")
	assert.Less(t, score, 20.0)

	repeated := strings.Repeat("###garbled###\n", 5)
	assert.Less(t, Estimate(repeated), 20.0)
}

func TestEstimateClinicalBeatsGarbled(t *testing.T) {
	assert.Greater(t, Estimate(sampleReport), Estimate("###garbled### ||| ???"))
}

func TestEstimateDeterministic(t *testing.T) {
	first := Estimate(sampleReport)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Estimate(sampleReport))
	}
}

func TestEstimateCorruptionMarkersPenalized(t *testing.T) {
	clean := "Hemoglobin: 13.5 g/dL measured in serum specimen"
	corrupted := clean + " ###### |||||| ??????"
	assert.Greater(t, Estimate(clean), Estimate(corrupted))
}

func TestEstimateSuspectCharacterPenalty(t *testing.T) {
	clean := "Glucose 95 mg/dL within reference interval"
	noisy := "Glu©øse 95 mg/dL ¶•§ ref¢rence £nterval ÷×¿ ¤¦¨"
	assert.Greater(t, Estimate(clean), Estimate(noisy))
}
