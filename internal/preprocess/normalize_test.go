package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerrors "github.com/healthscan/scan-worker/internal/errors"
)

// testPNG renders a small gradient image so every transform has luminance
// variation to work with.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 12, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 12; x++ {
			v := uint8(20 + x*18 + y*2)
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProfilesAreStable(t *testing.T) {
	all := Profiles()
	require.Len(t, all, 4)
	assert.Equal(t, "medical", all[0].ID)

	// Mutating the returned slice must not leak into the package state.
	all[0].ID = "mutated"
	assert.Equal(t, "medical", Profiles()[0].ID)
}

func TestLookup(t *testing.T) {
	p, ok := Lookup("high-contrast")
	require.True(t, ok)
	assert.Equal(t, 210, p.BinarizeThreshold)

	_, ok = Lookup("no-such-profile")
	assert.False(t, ok)
}

func TestDefaultProfile(t *testing.T) {
	assert.Equal(t, "medical", DefaultProfile().ID)
}

func TestNormalizeDecodeFailure(t *testing.T) {
	_, err := Normalize([]byte("definitely not an image"), DefaultProfile())
	require.Error(t, err)
	assert.True(t, scanerrors.IsCode(err, scanerrors.ErrorImageDecode))
}

func TestNormalizeEveryProfileProducesPNG(t *testing.T) {
	src := testPNG(t)
	for _, p := range Profiles() {
		out, err := Normalize(src, p)
		require.NoError(t, err, "profile: %s", p.ID)
		require.NotEmpty(t, out, "profile: %s", p.ID)

		decoded, err := png.Decode(bytes.NewReader(out))
		require.NoError(t, err, "profile: %s", p.ID)

		if p.ResizeHeight > 0 {
			assert.Equal(t, p.ResizeHeight, decoded.Bounds().Dy(), "profile: %s", p.ID)
		} else {
			assert.Equal(t, 8, decoded.Bounds().Dy(), "profile: %s", p.ID)
		}
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	src := testPNG(t)
	p, ok := Lookup("clean-document")
	require.True(t, ok)

	first, err := Normalize(src, p)
	require.NoError(t, err)
	second, err := Normalize(src, p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeBinarizeYieldsTwoLevels(t *testing.T) {
	src := testPNG(t)
	p, ok := Lookup("high-contrast")
	require.True(t, ok)

	out, err := Normalize(src, p)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	b := decoded.Bounds()
	violations := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := decoded.At(x, y).RGBA()
			if v := uint8(r >> 8); v != 0 && v != 255 {
				violations++
			}
		}
	}
	assert.Zero(t, violations)
}
