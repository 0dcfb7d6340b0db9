package models

import (
	"testing"
	"time"
)

func TestTypeFromID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    VehicleType
		wantErr bool
	}{
		{"train", "T42", TypeTrain, false},
		{"bus", "B101", TypeBus, false},
		{"uber", "U7", TypeUber, false},
		{"shuttle", "S300", TypeShuttle, false},
		{"unknown prefix", "X1", "", true},
		{"lowercase prefix", "b101", "", true},
		{"empty id", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TypeFromID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TypeFromID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("TypeFromID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []VehicleStatus{StatusIdle, StatusMoving, StatusWaiting, StatusDelayed, StatusFinished} {
		if !IsValidStatus(s) {
			t.Errorf("IsValidStatus(%q) = false, want true", s)
		}
	}
	for _, s := range []VehicleStatus{"", "PARKED", "idle"} {
		if IsValidStatus(s) {
			t.Errorf("IsValidStatus(%q) = true, want false", s)
		}
	}
}

func TestPlaceStayDuration(t *testing.T) {
	stay := 90
	withStay := Place{ID: "P1", StaySeconds: &stay}
	if got := withStay.StayDuration(); got != 90*time.Second {
		t.Errorf("StayDuration() = %v, want 90s", got)
	}

	withoutStay := Place{ID: "P2"}
	if got := withoutStay.StayDuration(); got != DefaultStay {
		t.Errorf("StayDuration() = %v, want %v", got, DefaultStay)
	}
}
