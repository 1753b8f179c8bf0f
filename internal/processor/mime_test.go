package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}
var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}

func TestIsSupportedMimeType(t *testing.T) {
	assert.True(t, IsSupportedMimeType(MimeJPEG))
	assert.True(t, IsSupportedMimeType(MimePNG))
	assert.False(t, IsSupportedMimeType("application/pdf"))
	assert.False(t, IsSupportedMimeType("image/tiff"))
	assert.False(t, IsSupportedMimeType(""))
}

func TestDetectMimeTypeFromMagicBytes(t *testing.T) {
	assert.Equal(t, MimePNG, detectMimeTypeFromMagicBytes(pngMagic))
	assert.Equal(t, MimeJPEG, detectMimeTypeFromMagicBytes(jpegMagic))
	assert.Equal(t, "application/pdf", detectMimeTypeFromMagicBytes([]byte("%PDF-1.4")))
	assert.Equal(t, "", detectMimeTypeFromMagicBytes([]byte("hello world")))
	assert.Equal(t, "", detectMimeTypeFromMagicBytes([]byte{0x89}))
	assert.Equal(t, "", detectMimeTypeFromMagicBytes(nil))
}

func TestResolveMimeType(t *testing.T) {
	// Generic declarations are corrected from content.
	assert.Equal(t, MimePNG, resolveMimeType("", pngMagic))
	assert.Equal(t, MimeJPEG, resolveMimeType("application/octet-stream", jpegMagic))

	// Specific declarations are trusted as-is.
	assert.Equal(t, MimeJPEG, resolveMimeType(MimeJPEG, pngMagic))

	// Unsniffable content keeps the declaration.
	assert.Equal(t, "application/octet-stream", resolveMimeType("application/octet-stream", []byte("text")))
}
