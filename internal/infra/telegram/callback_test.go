package telegram

import (
	"testing"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
)

func TestCallback_RoundTrip(t *testing.T) {
	actions := []domain.AlertAction{domain.ActionConfirm, domain.ActionEdit, domain.ActionIgnore}
	for _, want := range actions {
		data := encodeCallback(want, "3f1c9d2e-8a41-4b2f-9c3d-5e6f7a8b9c0d", 42)
		action, alertID, activityID, ok := decodeCallback(data)
		if !ok {
			t.Fatalf("Expected %q to decode", data)
		}
		if action != want {
			t.Errorf("Expected action %v, got %v", want, action)
		}
		if alertID != "3f1c9d2e-8a41-4b2f-9c3d-5e6f7a8b9c0d" {
			t.Errorf("Expected alert id to round-trip, got %q", alertID)
		}
		if activityID != 42 {
			t.Errorf("Expected activity id 42, got %d", activityID)
		}
	}
}

func TestCallback_FitsTelegramLimit(t *testing.T) {
	// Worst case: longest verb, uuid alert id, large activity id
	data := encodeCallback(domain.ActionConfirm, "3f1c9d2e-8a41-4b2f-9c3d-5e6f7a8b9c0d", 922337203685)
	if len(data) > 64 {
		t.Errorf("Expected callback data within 64 bytes, got %d: %q", len(data), data)
	}
}

func TestDecodeCallback_UnknownVerbIsNoOp(t *testing.T) {
	action, alertID, _, ok := decodeCallback("v|refund|abc|7")
	if !ok {
		t.Fatal("Expected well-formed frame with unknown verb to decode")
	}
	if action != domain.ActionUnknown {
		t.Errorf("Expected ActionUnknown, got %v", action)
	}
	if alertID != "abc" {
		t.Errorf("Expected alert id abc, got %q", alertID)
	}
}

func TestDecodeCallback_Malformed(t *testing.T) {
	cases := []string{
		"",
		"confirm",
		"v|confirm|abc",
		"w|confirm|abc|7",
		"v|confirm||7",
		"v|confirm|abc|notanumber",
	}
	for _, data := range cases {
		if _, _, _, ok := decodeCallback(data); ok {
			t.Errorf("Expected %q to be rejected", data)
		}
	}
}
