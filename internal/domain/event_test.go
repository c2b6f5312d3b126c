package domain

import (
	"reflect"
	"testing"
)

func TestMetadataRoundTrip(t *testing.T) {
	original := Metadata{"order_id": "abc-123", "retries": float64(2)}

	raw, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var decoded Metadata
	if err := decoded.Scan(raw); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round trip mismatch: got %#v, want %#v", decoded, original)
	}
}

func TestMetadataScanNil(t *testing.T) {
	var m Metadata
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty metadata, got %#v", m)
	}
}

func TestEventTypeValid(t *testing.T) {
	valid := []EventType{EventNotification, EventAlert, EventWarning, EventInfo}
	for _, et := range valid {
		if !et.Valid() {
			t.Errorf("expected %q to be valid", et)
		}
	}
	if EventType("BOGUS").Valid() {
		t.Error("expected BOGUS to be invalid")
	}
}
