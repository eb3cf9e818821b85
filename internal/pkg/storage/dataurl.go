// internal/pkg/storage/dataurl.go
package storage

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"slices"
	"strings"

	xerrors "billing-service/internal/pkg/errors"
)

// MaxUploadBytes caps a decoded upload.
const MaxUploadBytes = 10 << 20

var (
	dataURLPattern  = regexp.MustCompile(`(?s)^data:([^;]+);base64,(.+)$`)
	unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

	ErrInvalidDocument  = xerrors.New(xerrors.KindValidation, "invalid document format")
	ErrDocumentTooLarge = xerrors.New(xerrors.KindValidation, "document is too large")
)

// DecodeDataURL unpacks a base64 data URL whose MIME type is in allowed.
func DecodeDataURL(dataURL string, allowed []string) (string, []byte, error) {
	match := dataURLPattern.FindStringSubmatch(strings.TrimSpace(dataURL))
	if match == nil {
		return "", nil, ErrInvalidDocument
	}

	mimeType := strings.ToLower(strings.TrimSpace(match[1]))
	if !slices.Contains(allowed, mimeType) {
		return "", nil, fmt.Errorf("%w: %s", xerrors.ErrUnsupportedDocument, mimeType)
	}

	if base64.StdEncoding.DecodedLen(len(match[2])) > MaxUploadBytes {
		return "", nil, ErrDocumentTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(match[2])
	if err != nil || len(data) == 0 {
		return "", nil, ErrInvalidDocument
	}
	return mimeType, data, nil
}

// Extension picks a file extension for mimeType.
func Extension(mimeType string) string {
	if mimeType == "application/pdf" {
		return "pdf"
	}
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
		return sub
	}
	return "bin"
}

// SafeName strips everything but letters, digits, dot, dash and underscore.
func SafeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "")
}
