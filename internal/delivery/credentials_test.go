package delivery

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestIssueTrackingNumber(t *testing.T) {
	first := IssueTrackingNumber()
	second := IssueTrackingNumber()

	if !strings.HasPrefix(first, "TRK") {
		t.Errorf("tracking number %q missing TRK prefix", first)
	}
	if first == second {
		t.Errorf("consecutive tracking numbers collided: %q", first)
	}

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		tn := IssueTrackingNumber()
		if _, dup := seen[tn]; dup {
			t.Fatalf("duplicate tracking number after %d issues: %q", i, tn)
		}
		seen[tn] = struct{}{}
	}
}

func TestIssuePickupCode(t *testing.T) {
	code, err := IssuePickupCode(8)
	if err != nil {
		t.Fatalf("IssuePickupCode() error = %v", err)
	}
	if len(code) != 8 {
		t.Errorf("code length = %d, want 8", len(code))
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("code %q contains %q outside the alphabet", code, r)
		}
	}

	if _, err := IssuePickupCode(0); err == nil {
		t.Error("IssuePickupCode(0) should fail")
	}
}

func TestPickupPayloadRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		tracking string
		code     string
		email    string
	}{
		{"typical", "TRK1756450000000ABCDEF", "HKQ2M8XY", "recipient@example.com"},
		{"no email", "TRK1756450000001ABCDEF", "ZZZZ2222", ""},
		{"unicode email", "TRK1756450000002ABCDEF", "ABCD2345", "bob@münchen.example"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := EncodePickupPayload(tc.tracking, tc.code, tc.email)

			tracking, code, err := DecodePickupPayload(payload)
			if err != nil {
				t.Fatalf("DecodePickupPayload() error = %v", err)
			}
			if tracking != tc.tracking || code != tc.code {
				t.Errorf("round trip = (%q, %q), want (%q, %q)", tracking, code, tc.tracking, tc.code)
			}
		})
	}
}

func TestDecodePickupPayload_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"not json", base64.URLEncoding.EncodeToString([]byte("plain text"))},
		{"missing code", base64.URLEncoding.EncodeToString([]byte(`{"tracking_number":"TRK1"}`))},
		{"missing tracking", base64.URLEncoding.EncodeToString([]byte(`{"pickup_code":"ABCD2345"}`))},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := DecodePickupPayload(tc.payload)
			if !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("DecodePickupPayload() error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}
