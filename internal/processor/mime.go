package processor

import "bytes"

// Supported input MIME types. PDF handling is out of scope: callers must
// rasterize pages to images upstream.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// IsSupportedMimeType reports whether the processor accepts the MIME type.
func IsSupportedMimeType(mimeType string) bool {
	return mimeType == MimeJPEG || mimeType == MimePNG
}

// detectMimeTypeFromMagicBytes sniffs the actual MIME type from file content.
// Upload paths frequently report generic "application/octet-stream" for
// perfectly valid images.
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return MimePNG
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return MimeJPEG
	}

	// PDF: %PDF- (recognized so the rejection names the real type)
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	return ""
}

// resolveMimeType prefers the declared type but corrects blank or generic
// declarations from magic bytes.
func resolveMimeType(declared string, data []byte) string {
	if declared == "" || declared == "application/octet-stream" {
		if sniffed := detectMimeTypeFromMagicBytes(data); sniffed != "" {
			return sniffed
		}
	}
	return declared
}
