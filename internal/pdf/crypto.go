package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// decrypt removes encryption from data in memory so the content parser can
// read it. Documents with only an owner password decrypt without credentials.
func decrypt(data []byte, creds Credentials) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &out, newConfiguration(creds)); err != nil {
		if isPasswordError(err) && creds.Empty() {
			return nil, ErrPasswordRequired
		}
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return out.Bytes(), nil
}

// IsEncrypted reports whether data is an encrypted PDF without attempting
// to decrypt it.
func IsEncrypted(data []byte) bool {
	conf := newConfiguration(Credentials{})
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return isPasswordError(err)
	}
	return ctx.Encrypt != nil
}

// isPasswordError matches the credential failures reported by pdfcpu,
// which does not export sentinel errors for them.
func isPasswordError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") ||
		strings.Contains(msg, "decrypt") ||
		strings.Contains(msg, "encrypted")
}
