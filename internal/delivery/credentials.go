package delivery

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tracking numbers are TRK + millisecond timestamp + random suffix. The
// timestamp prefix keeps them roughly sortable; the suffix makes collisions
// within the same millisecond negligible.
const (
	trackingPrefix    = "TRK"
	trackingSuffixLen = 6
)

// codeAlphabet excludes characters that read ambiguously on a small screen
// (0/O, 1/I). Codes are typed by recipients at the cabinet keypad.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// IssueTrackingNumber produces a globally unique tracking identifier.
//
// Uniqueness is probabilistic but overwhelming: equal timestamps must also
// collide on a random 6-character hex suffix. The format itself is not a
// contract; only uniqueness is.
func IssueTrackingNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:trackingSuffixLen])
	return fmt.Sprintf("%s%d%s", trackingPrefix, time.Now().UnixMilli(), suffix)
}

// IssuePickupCode produces a short human-typable code of the given length.
//
// Codes are drawn from crypto/rand over an unambiguous alphabet. Uniqueness
// among active deliveries is enforced by the store at insert time, not here;
// callers retry on collision.
func IssuePickupCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("pickup code length must be positive, got %d", length)
	}

	code := make([]byte, length)
	maxIdx := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, maxIdx)
		if err != nil {
			return "", fmt.Errorf("generating pickup code: %w", err)
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// pickupPayload is the structured content behind the scannable code.
type pickupPayload struct {
	TrackingNumber string `json:"tracking_number"`
	PickupCode     string `json:"pickup_code"`
	RecipientEmail string `json:"recipient_email,omitempty"`
}

// EncodePickupPayload packs pickup credentials into an opaque string.
//
// The payload is base64url-encoded JSON; clients render it as a QR code.
// The encoding is a plain structured-text round trip, not a secrecy
// mechanism — the pickup code inside is the secret.
func EncodePickupPayload(trackingNumber, pickupCode, recipientEmail string) string {
	data, _ := json.Marshal(pickupPayload{
		TrackingNumber: trackingNumber,
		PickupCode:     pickupCode,
		RecipientEmail: recipientEmail,
	})
	return base64.URLEncoding.EncodeToString(data)
}

// DecodePickupPayload inverts EncodePickupPayload.
// Returns ErrInvalidPayload for anything that does not decode to a payload
// carrying both credentials.
func DecodePickupPayload(payload string) (trackingNumber, pickupCode string, err error) {
	raw, decErr := base64.URLEncoding.DecodeString(payload)
	if decErr != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidPayload, decErr)
	}

	var p pickupPayload
	if jsonErr := json.Unmarshal(raw, &p); jsonErr != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidPayload, jsonErr)
	}
	if p.TrackingNumber == "" || p.PickupCode == "" {
		return "", "", fmt.Errorf("%w: missing credentials", ErrInvalidPayload)
	}
	return p.TrackingNumber, p.PickupCode, nil
}
