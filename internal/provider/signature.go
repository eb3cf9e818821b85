package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	xerrors "billing-service/internal/pkg/errors"
)

const signaturePrefix = "sha256="

// Sign returns the header value a gateway sends for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// verifySignature recomputes the HMAC-SHA256 of rawBody and compares it with
// the hex digest in header, with or without the sha256= prefix.
func verifySignature(gateway, secret string, rawBody []byte, header string) error {
	if secret == "" {
		return xerrors.Newf(xerrors.KindInternal, "%s webhook secret not configured", gateway)
	}

	got := strings.TrimPrefix(strings.TrimSpace(header), signaturePrefix)
	if got == "" {
		return fmt.Errorf("%w: missing %s signature", xerrors.ErrInvalidSignature, gateway)
	}

	expected := strings.TrimPrefix(Sign(secret, rawBody), signaturePrefix)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(expected)) {
		return fmt.Errorf("%w: %s", xerrors.ErrInvalidSignature, gateway)
	}
	return nil
}
