package recommend

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultListingBaseURL = "https://www.practo.com"

// Hospital is a curated referral entry for a predicted condition.
type Hospital struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Contact   string `json:"contact"`
}

// Specialist is a curated per-city dermatologist entry.
type Specialist struct {
	Name       string `json:"name"`
	Specialty  string `json:"specialty"`
	Clinic     string `json:"clinic"`
	Experience string `json:"experience"`
	Address    string `json:"address"`
	Hours      string `json:"hours"`
	Phone      string `json:"phone"`
}

// Clinic is a best-effort entry scraped from a live listing page.
type Clinic struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Source    string `json:"source"`
	Location  string `json:"location"`
}

var defaultHospitals = []Hospital{
	{Name: "Central Dermatology Center", Specialty: "Dermatology & Skin Oncology", Contact: "Front desk: (000) 000-0000"},
	{Name: "Riverside Skin Clinic", Specialty: "General Dermatology", Contact: "Appointments: (000) 000-0000"},
}

var hospitalsByCondition = map[string][]Hospital{
	"Acne": {
		{Name: "ClearSkin Institute", Specialty: "Acne & Cosmetic Dermatology", Contact: "Appointments: (000) 000-0000"},
	},
	"Basal Cell Carcinoma": {
		{Name: "Allergy & Derm Care", Specialty: "Basal Cell Carcinoma", Contact: "Appointments: (000) 000-0000"},
	},
	"Melanoma": {
		{Name: "Onco-Derm Center", Specialty: "Skin Oncology", Contact: "Cancer care: (000) 000-0000"},
	},
	"Psoriasis": {
		{Name: "Psoriasis Treatment Hub", Specialty: "Chronic Skin Conditions", Contact: "Front desk: (000) 000-0000"},
	},
	"Rosacea": {
		{Name: "Vascular Derm Clinic", Specialty: "Rosacea & Redness", Contact: "Appointments: (000) 000-0000"},
	},
}

var specialistNames = []string{
	"Dr. Aarav Mehta", "Dr. Kavya Rao", "Dr. Rohan Iyer", "Dr. Sneha Kulkarni",
	"Dr. Vivek Nair", "Dr. Nisha Bhat", "Dr. Priya Menon", "Dr. Suresh Rao",
	"Dr. Rahul Jain", "Dr. Aisha Khan",
}

var cityAreas = map[string][]string{
	"Bangalore": {"Indiranagar", "Koramangala", "Whitefield", "Jayanagar", "HSR Layout", "MG Road", "BTM Layout", "Hebbal", "JP Nagar", "Yelahanka"},
	"Mumbai":    {"Andheri West", "Bandra", "Juhu", "Powai", "Thane", "Dadar", "Borivali", "Chembur", "Malad", "Colaba"},
	"Delhi":     {"South Delhi", "Dwarka", "Rohini", "Saket", "Lajpat Nagar", "Karol Bagh", "Noida", "Gurgaon", "Pitampura", "Mayur Vihar"},
	"Hyderabad": {"HITEC City", "Banjara Hills", "Jubilee Hills", "Gachibowli", "Madhapur", "Kondapur", "Begumpet", "Secunderabad", "Kukatpally", "LB Nagar"},
	"Chennai":   {"Adyar", "T Nagar", "Velachery", "Anna Nagar", "OMR", "Porur", "Tambaram", "Nungambakkam", "Mylapore", "Guindy"},
	"Kolkata":   {"Salt Lake", "Park Street", "New Town", "Garia", "Howrah", "Behala", "Dum Dum", "Jadavpur", "Ballygunge", "Kasba"},
	"Pune":      {"Koregaon Park", "Hinjewadi", "Baner", "Aundh", "Kothrud", "Viman Nagar", "Hadapsar", "Wakad", "Shivajinagar", "Kharadi"},
	"Jaipur":    {"C Scheme", "Malviya Nagar", "Vaishali Nagar", "Tonk Road", "Jagatpura", "Mansarovar", "Bani Park", "MI Road", "Ajmer Road", "Raja Park"},
}

// HospitalsFor returns the curated referrals for a predicted condition,
// falling back to the general list for unknown conditions.
func HospitalsFor(condition string) []Hospital {
	if hospitals, ok := hospitalsByCondition[condition]; ok {
		return hospitals
	}
	return defaultHospitals
}

// CitySpecialists returns the curated directory entries for a city, matched
// case-insensitively. Unknown cities yield an empty slice.
func CitySpecialists(city string) []Specialist {
	key := strings.ToLower(strings.TrimSpace(city))
	if key == "" {
		return nil
	}

	for name, areas := range cityAreas {
		if strings.ToLower(name) != key {
			continue
		}
		specialists := make([]Specialist, 0, len(specialistNames))
		for i, doctor := range specialistNames {
			specialists = append(specialists, Specialist{
				Name:       doctor,
				Specialty:  "Dermatologist",
				Clinic:     areas[i] + " Skin Clinic",
				Experience: fmt.Sprintf("%d yrs", 6+i),
				Address:    areas[i],
				Hours:      "Mon-Sat 10am-6pm",
				Phone:      fmt.Sprintf("+9190000%s%02d", strings.ToUpper(name[:2]), i),
			})
		}
		return specialists
	}
	return nil
}

// BuildClinicSearchURL returns the listing URL for skin clinics in location.
func BuildClinicSearchURL(base, location string) string {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return base + "/location/clinics/skin-clinics"
	}
	slug := strings.Join(strings.Fields(loc), "-")
	return fmt.Sprintf("%s/%s/clinics/skin-clinics", base, slug)
}

// ClinicFetcher pulls live clinic listings. Failures never propagate as
// errors; they surface as an advisory string alongside an empty list.
type ClinicFetcher struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	userAgent  string
}

// NewClinicFetcher constructs a fetcher against the public listing site.
func NewClinicFetcher(logger *zap.Logger) *ClinicFetcher {
	return &ClinicFetcher{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		logger:     logger.Named("clinics"),
		baseURL:    defaultListingBaseURL,
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Fetch scans the listing page for clinic markers. The parse is deliberately
// loose to avoid brittle selectors against a page we do not control.
func (f *ClinicFetcher) Fetch(ctx context.Context, location string) ([]Clinic, string) {
	url := BuildClinicSearchURL(f.baseURL, location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Sprintf("unable to build listing request: %v", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("clinic listing fetch failed", zap.Error(err), zap.String("url", url))
		return nil, fmt.Sprintf("unable to load live clinic listings: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Sprintf("listing site responded with status %d", resp.StatusCode)
	}

	var clinics []Clinic
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() && len(clinics) < 15 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || len(line) >= 120 {
			continue
		}
		if strings.Contains(line, "clinic-card") || strings.Contains(line, "clinic-name") {
			clinics = append(clinics, Clinic{
				Name:      line,
				Specialty: "Skin Clinic",
				Source:    "Practo Listing",
				Location:  location,
			})
		}
	}

	if len(clinics) == 0 {
		return nil, "no listings could be parsed; access may be blocked"
	}
	return clinics, ""
}
