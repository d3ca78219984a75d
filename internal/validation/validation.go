// Package validation checks user-supplied names and payloads before they
// reach the conversion pipeline. The HTTP API runs every upload through it;
// the CLI uses it when deriving output names from untrusted input.
package validation

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/redlinekit/redline/core/errors"
)

const (
	// MaxUploadSize is the largest accepted .docx payload (64 MB).
	MaxUploadSize = 64 << 20
	// MaxFilenameLength is the longest accepted source filename.
	MaxFilenameLength = 255
)

// zipMagic is the zip local file header. Every .docx container starts
// with it.
var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// ValidateFilename rejects names that cannot serve as a source name.
// Path separators, null bytes, control characters, reserved names, and
// leading hyphens are all refused rather than repaired; use
// SanitizeFilename when a best-effort rewrite is wanted instead.
func ValidateFilename(name string) error {
	if name == "" {
		return errors.NewValidation("filename", "filename is empty")
	}
	if len(name) > MaxFilenameLength {
		return errors.NewValidation("filename", fmt.Sprintf("filename exceeds %d bytes", MaxFilenameLength))
	}
	if name == "." || name == ".." {
		return errors.NewValidation("filename", "reserved name")
	}
	if strings.ContainsAny(name, "/\\") {
		return errors.NewValidation("filename", "path separator not allowed")
	}
	if strings.Contains(name, "\x00") {
		return errors.NewValidation("filename", "null byte not allowed")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errors.NewValidation("filename", "control character not allowed")
		}
	}
	if strings.HasPrefix(name, "-") {
		return errors.NewValidation("filename", "filename cannot start with a hyphen")
	}
	return nil
}

// SanitizeFilename rewrites name into a form that passes ValidateFilename:
// separators become underscores, null bytes and control characters are
// dropped, surrounding whitespace is trimmed, and a leading hyphen is
// replaced. An error is returned when nothing usable remains.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")

	var cleaned strings.Builder
	for _, r := range name {
		if r == 0 || unicode.IsControl(r) {
			continue
		}
		cleaned.WriteRune(r)
	}
	name = cleaned.String()

	if strings.HasPrefix(name, "-") {
		name = "_" + strings.TrimPrefix(name, "-")
	}
	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}
	if name == "" || name == "." || name == ".." {
		return "", errors.NewValidation("filename", "no usable filename after sanitizing")
	}
	return name, nil
}

// IsZip reports whether data begins with the zip local file header.
func IsZip(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// ValidateUpload checks that data plausibly holds a .docx container. It
// verifies the size bound and the zip magic; deeper structure is left to
// the container reader.
func ValidateUpload(data []byte) error {
	if len(data) == 0 {
		return errors.NewValidation("upload", "empty payload")
	}
	if len(data) > MaxUploadSize {
		return errors.NewValidation("upload", fmt.Sprintf("payload exceeds %d bytes", MaxUploadSize))
	}
	if !IsZip(data) {
		return errors.NewValidation("upload", "not a zip archive (.docx files are zip containers)")
	}
	return nil
}
