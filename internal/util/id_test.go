package util

import "testing"

func TestNewIDIsUUID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if !IsID(a) {
		t.Fatalf("NewID() = %q is not a UUID", a)
	}
	if IsID("report_123") {
		t.Fatal("IsID accepted a non-UUID")
	}
}
