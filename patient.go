package dicomscan

import (
	"strings"
	"time"
	"unicode"
)

// Patient is the demographic summary shown next to a series list.
type Patient struct {
	Name      string
	ID        string
	Sex       string
	BirthDate time.Time
}

// Patient summarizes the patient attributes of h. The study ID stands in for a missing patient ID.
func (h *HeaderFields) Patient() Patient {
	p := Patient{
		Name: NormalizePersonName(h.PatientName),
		ID:   strings.TrimSpace(h.PatientID),
		Sex:  SexLabel(h.PatientSex),
	}
	if p.ID == "" {
		p.ID = strings.TrimSpace(h.StudyID)
	}
	if d, ok := ParseDate(h.PatientBirthDate); ok {
		p.BirthDate = d
	}
	return p
}

// NormalizePersonName turns a PN value such as "Doe^John^^Dr" into "Doe John Dr". Only the
// alphabetic component group is kept.
func NormalizePersonName(pn string) string {
	if i := strings.IndexByte(pn, '='); i >= 0 {
		pn = pn[:i]
	}
	var parts []string
	for _, p := range strings.Split(pn, "^") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ParseDate parses a DA value. Besides YYYYMMDD it accepts the separated forms found in older
// files ("YYYY.MM.DD", "YYYY-MM-DD"). An empty or all zero date is reported as absent.
func ParseDate(s string) (time.Time, bool) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
	if len(digits) < 8 || strings.Trim(digits, "0") == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", digits[:8])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SexLabel expands a Patient's Sex code.
func SexLabel(code string) string {
	switch code = strings.ToUpper(strings.TrimSpace(code)); code {
	case "M":
		return "Male"
	case "F":
		return "Female"
	case "O":
		return "Other"
	case "U", "":
		return "Unknown"
	default:
		return code
	}
}
