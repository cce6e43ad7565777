package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IssueLinkCode mints a signed one-time code that binds an external group.
// The code is self-describing: the group ID and expiry ride along with an
// HMAC over both, so no server-side state is needed before redemption.
func IssueLinkCode(secret, groupID string, expiresAt time.Time) string {
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	sig := signLinkCode(secret, groupID, exp)
	payload := fmt.Sprintf("%s:%s:%s", groupID, exp, sig)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseLinkCode verifies a code and returns the external group ID it was
// issued for. Tampered codes return ErrCodeInvalid; authentic but stale
// ones return ErrCodeExpired.
func ParseLinkCode(secret, code string, now time.Time) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(code)
	if err != nil {
		return "", ErrCodeInvalid
	}
	// Group IDs never contain colons, so splitting from the right is safe.
	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 {
		return "", ErrCodeInvalid
	}
	groupID, exp, sig := parts[0], parts[1], parts[2]

	want := signLinkCode(secret, groupID, exp)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", ErrCodeInvalid
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", ErrCodeInvalid
	}
	if now.After(time.Unix(expUnix, 0)) {
		return "", ErrCodeExpired
	}
	return groupID, nil
}

func signLinkCode(secret, groupID, exp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%s", groupID, exp)
	return hex.EncodeToString(mac.Sum(nil))
}
