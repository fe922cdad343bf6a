// Package webhook delivers alert payloads over HTTPS POST.
//
// It detects Slack incoming-webhook URLs and formats Block Kit messages
// for them, signs every body with HMAC-SHA256 (with a second signature
// during secret rotation) and sends through an SSRF-guarded client.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex>[,v1_old=<hex>]".
const SignatureHeader = "X-Delaywatch-Signature"

// Signer computes webhook signatures. The signed content is
// "<unix_timestamp>.<body>".
type Signer struct {
	secret         string
	previousSecret string
}

// NewSigner returns a Signer. previous may be empty; while it is set every
// header also carries a v1_old signature so receivers can rotate.
func NewSigner(secret, previous string) *Signer {
	return &Signer{secret: secret, previousSecret: previous}
}

// Sign returns the header value for body at now.
func (s *Signer) Sign(body []byte, now time.Time) (string, error) {
	if s.secret == "" {
		return "", fmt.Errorf("webhook signature: empty secret")
	}
	ts := now.Unix()
	content := signedContent(strconv.FormatInt(ts, 10), body)

	header := fmt.Sprintf("t=%d,v1=%s", ts, computeHMAC(content, s.secret))
	if s.previousSecret != "" {
		header += ",v1_old=" + computeHMAC(content, s.previousSecret)
	}
	return header, nil
}

// Verify checks header against body. It accepts either signature under any
// of the supplied secrets and rejects timestamps older than tolerance when
// tolerance is positive.
func Verify(body []byte, header string, now time.Time, tolerance time.Duration, secrets ...string) bool {
	parts := parseSignatureHeader(header)
	if parts.timestamp == "" || parts.v1 == "" {
		return false
	}
	if tolerance > 0 {
		ts, err := strconv.ParseInt(parts.timestamp, 10, 64)
		if err != nil || now.Sub(time.Unix(ts, 0)) > tolerance {
			return false
		}
	}

	content := signedContent(parts.timestamp, body)
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		expected := []byte(computeHMAC(content, secret))
		if hmac.Equal([]byte(parts.v1), expected) {
			return true
		}
		if parts.v1Old != "" && hmac.Equal([]byte(parts.v1Old), expected) {
			return true
		}
	}
	return false
}

type signatureParts struct {
	timestamp string
	v1        string
	v1Old     string
}

func parseSignatureHeader(header string) signatureParts {
	var parts signatureParts
	for _, segment := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			parts.timestamp = strings.TrimSpace(value)
		case "v1":
			parts.v1 = strings.TrimSpace(value)
		case "v1_old":
			parts.v1Old = strings.TrimSpace(value)
		}
	}
	return parts
}

func signedContent(ts string, body []byte) string {
	return ts + "." + string(body)
}

// computeHMAC returns the lowercase hex HMAC-SHA256 of content under key.
func computeHMAC(content, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
