package models

import "testing"

func TestRecordKindString(t *testing.T) {
	if got := Image.String(); got != "image" {
		t.Errorf("Expected image, got %q", got)
	}
	if got := StructureSet.String(); got != "structure-set" {
		t.Errorf("Expected structure-set, got %q", got)
	}
}
