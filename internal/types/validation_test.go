package types

import (
	"math"
	"testing"
)

func TestSiteValidate(t *testing.T) {
	valid := Site{
		ID:         "site-1",
		Location:   &Location{Lat: 39.74, Lon: -104.99},
		CrewSize:   4,
		Thresholds: Thresholds{MaxWindSpeedMPH: ptr(25)},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid site: %v", err)
	}
	if !valid.Monitorable() {
		t.Error("valid site should be monitorable")
	}

	noLoc := valid
	noLoc.Location = nil
	if err := noLoc.Validate(); !IsCode(err, ErrCodeValidationMissingField) {
		t.Errorf("missing location code = %q", CodeOf(err))
	}
	if noLoc.Monitorable() {
		t.Error("site without coordinates should not be monitorable")
	}

	badLat := valid
	badLat.Location = &Location{Lat: 91, Lon: 0}
	if err := badLat.Validate(); !IsCode(err, ErrCodeValidationInvalidLat) {
		t.Errorf("bad latitude code = %q", CodeOf(err))
	}

	badLon := valid
	badLon.Location = &Location{Lat: 0, Lon: 181}
	if err := badLon.Validate(); !IsCode(err, ErrCodeValidationInvalidLon) {
		t.Errorf("bad longitude code = %q", CodeOf(err))
	}

	negativeCrew := valid
	negativeCrew.CrewSize = -1
	if err := negativeCrew.Validate(); !IsCode(err, ErrCodeValidationInvalidCrewSize) {
		t.Errorf("negative crew code = %q", CodeOf(err))
	}

	negativeRate := valid
	negativeRate.HourlyRate = -20
	if err := negativeRate.Validate(); !IsCode(err, ErrCodeValidationInvalidRate) {
		t.Errorf("negative hourly rate code = %q", CodeOf(err))
	}

	nanOverhead := valid
	nanOverhead.DailyOverhead = math.NaN()
	if err := nanOverhead.Validate(); !IsCode(err, ErrCodeValidationInvalidRate) {
		t.Errorf("NaN overhead code = %q", CodeOf(err))
	}

	badLimit := valid
	badLimit.Thresholds = Thresholds{MaxWindSpeedMPH: ptr(-5)}
	if err := badLimit.Validate(); !IsCode(err, ErrCodeValidationInvalidCondition) {
		t.Errorf("negative limit code = %q", CodeOf(err))
	}

	noThresholds := valid
	noThresholds.Thresholds = Thresholds{}
	if noThresholds.Monitorable() {
		t.Error("site without thresholds should not be monitorable")
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url      string
		insecure bool
		wantErr  bool
	}{
		{"https://hooks.example.com/delay", false, false},
		{"http://localhost:8080/hook", false, true},
		{"http://localhost:8080/hook", true, false},
		{"ftp://example.com", true, true},
		{"/relative", false, true},
	}
	for _, tt := range tests {
		err := ValidateWebhookURL(tt.url, tt.insecure)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateWebhookURL(%q, %v) err = %v, wantErr %v", tt.url, tt.insecure, err, tt.wantErr)
		}
	}
}
