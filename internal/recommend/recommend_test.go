package recommend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestHospitalsForKnownCondition(t *testing.T) {
	hospitals := HospitalsFor("Melanoma")

	if len(hospitals) != 1 || hospitals[0].Name != "Onco-Derm Center" {
		t.Fatalf("unexpected hospitals: %+v", hospitals)
	}
}

func TestHospitalsForUnknownConditionFallsBack(t *testing.T) {
	hospitals := HospitalsFor("Unknown Condition")

	if len(hospitals) != len(defaultHospitals) {
		t.Fatalf("expected default list, got %+v", hospitals)
	}
}

func TestCitySpecialistsMatchesCaseInsensitively(t *testing.T) {
	specialists := CitySpecialists("bangalore")

	if len(specialists) != len(specialistNames) {
		t.Fatalf("expected %d specialists, got %d", len(specialistNames), len(specialists))
	}
	if specialists[0].Specialty != "Dermatologist" {
		t.Fatalf("unexpected specialty: %s", specialists[0].Specialty)
	}
	if specialists[0].Address == "" {
		t.Fatal("expected an address")
	}
}

func TestCitySpecialistsUnknownCity(t *testing.T) {
	if got := CitySpecialists("Atlantis"); got != nil {
		t.Fatalf("expected nil for unknown city, got %+v", got)
	}
	if got := CitySpecialists(""); got != nil {
		t.Fatalf("expected nil for empty city, got %+v", got)
	}
}

func TestBuildClinicSearchURL(t *testing.T) {
	cases := []struct {
		location string
		want     string
	}{
		{"", "https://example.com/location/clinics/skin-clinics"},
		{"New Delhi", "https://example.com/new-delhi/clinics/skin-clinics"},
		{"  Pune  ", "https://example.com/pune/clinics/skin-clinics"},
	}

	for _, tc := range cases {
		if got := BuildClinicSearchURL("https://example.com", tc.location); got != tc.want {
			t.Errorf("location %q: expected %s, got %s", tc.location, tc.want, got)
		}
	}
}

func TestFetchParsesClinicMarkers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>\n<div class=\"clinic-card\">Derma One</div>\n<div class=\"clinic-name\">Skin First</div>\n<div>unrelated</div>\n</html>"))
	}))
	defer server.Close()

	fetcher := NewClinicFetcher(zap.NewNop())
	fetcher.baseURL = server.URL

	clinics, note := fetcher.Fetch(context.Background(), "pune")

	if note != "" {
		t.Fatalf("unexpected note: %s", note)
	}
	if len(clinics) != 2 {
		t.Fatalf("expected 2 clinics, got %d", len(clinics))
	}
	if clinics[0].Location != "pune" {
		t.Fatalf("unexpected location: %s", clinics[0].Location)
	}
}

func TestFetchReportsEmptyParse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>nothing to see</body></html>"))
	}))
	defer server.Close()

	fetcher := NewClinicFetcher(zap.NewNop())
	fetcher.baseURL = server.URL

	clinics, note := fetcher.Fetch(context.Background(), "")

	if len(clinics) != 0 {
		t.Fatalf("expected no clinics, got %+v", clinics)
	}
	if note == "" {
		t.Fatal("expected an advisory note")
	}
}

func TestFetchReportsUpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fetcher := NewClinicFetcher(zap.NewNop())
	fetcher.baseURL = server.URL

	clinics, note := fetcher.Fetch(context.Background(), "pune")

	if len(clinics) != 0 || note == "" {
		t.Fatalf("expected advisory note on 403, got clinics=%v note=%q", clinics, note)
	}
}
