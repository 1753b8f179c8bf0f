package preprocess

/**
 * Preprocessing profiles for the HealthScan scan worker
 *
 * A profile is a named, immutable transform sequence tuned for one document
 * style. Profiles are process-wide constants and are never mutated at runtime.
 */

// Profile describes a fixed sequence of image transforms. Zero values disable
// the corresponding step.
type Profile struct {
	ID string

	// ResizeHeight upsamples the image to this height (aspect preserved) when
	// the source is shorter. Small phone captures OCR poorly without this.
	ResizeHeight int

	Greyscale bool

	// Normalize applies a linear contrast stretch across the luminance range.
	Normalize bool

	// Contrast is a percentage adjustment in [-100, 100].
	Contrast float64

	// Gamma correction; values <= 0 or == 1 are skipped.
	Gamma float64

	// SharpenSigma controls unsharp masking; <= 0 skips.
	SharpenSigma float64

	// BinarizeThreshold maps luminance to pure black/white; 0 skips, valid 1-255.
	BinarizeThreshold int

	// MedianRadius applies median denoising with the given window radius.
	MedianRadius int
}

var profiles = []Profile{
	{
		ID:           "medical",
		ResizeHeight: 1300,
		Greyscale:    true,
		Normalize:    true,
		Contrast:     15,
		SharpenSigma: 0.7,
		MedianRadius: 1,
	},
	{
		ID:                "high-contrast",
		ResizeHeight:      1300,
		Greyscale:         true,
		Contrast:          30,
		Gamma:             1.2,
		BinarizeThreshold: 210,
	},
	{
		ID:           "table",
		ResizeHeight: 1600,
		Greyscale:    true,
		Normalize:    true,
		SharpenSigma: 1.0,
	},
	{
		ID:        "clean-document",
		Greyscale: true,
	},
}

// Profiles returns all known profiles in a stable order.
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}

// Lookup returns the profile with the given id.
func Lookup(id string) (Profile, bool) {
	for _, p := range profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// DefaultProfile is the profile used when a request runs a single engine
// without enhanced preprocessing.
func DefaultProfile() Profile {
	return profiles[0]
}
