package bridge

import (
	"errors"
	"testing"
	"time"
)

func TestLinkCodeRoundTrip(t *testing.T) {
	t.Parallel()
	now := time.Now()
	code := IssueLinkCode("secret", "-1001234567890", now.Add(10*time.Minute))

	groupID, err := ParseLinkCode("secret", code, now)
	if err != nil {
		t.Fatalf("ParseLinkCode: %v", err)
	}
	if groupID != "-1001234567890" {
		t.Errorf("group id = %q, want -1001234567890", groupID)
	}
}

func TestLinkCodeExpired(t *testing.T) {
	t.Parallel()
	now := time.Now()
	code := IssueLinkCode("secret", "42", now.Add(-time.Minute))

	if _, err := ParseLinkCode("secret", code, now); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("err = %v, want ErrCodeExpired", err)
	}
}

func TestLinkCodeRejectsTampering(t *testing.T) {
	t.Parallel()
	now := time.Now()
	code := IssueLinkCode("secret", "42", now.Add(time.Hour))

	tests := []struct {
		name string
		code string
		key  string
	}{
		{name: "wrong secret", code: code, key: "other"},
		{name: "garbage", code: "!!not-base64!!", key: "secret"},
		{name: "truncated", code: code[:len(code)/2], key: "secret"},
		{name: "empty", code: "", key: "secret"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseLinkCode(tc.key, tc.code, now); !errors.Is(err, ErrCodeInvalid) {
				t.Fatalf("err = %v, want ErrCodeInvalid", err)
			}
		})
	}
}

func TestIsLinkCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		body    string
		wantArg string
		wantOK  bool
	}{
		{body: "/link", wantArg: "", wantOK: true},
		{body: "/link abc123", wantArg: "abc123", wantOK: true},
		{body: "/link@teamlink_bot abc123", wantArg: "abc123", wantOK: true},
		{body: "hello there", wantOK: false},
		{body: "/linkage", wantOK: false},
		{body: "", wantOK: false},
	}
	for _, tc := range tests {
		arg, ok := IsLinkCommand(InboundMessage{Body: tc.body})
		if ok != tc.wantOK || arg != tc.wantArg {
			t.Errorf("IsLinkCommand(%q) = (%q, %v), want (%q, %v)",
				tc.body, arg, ok, tc.wantArg, tc.wantOK)
		}
	}
}
