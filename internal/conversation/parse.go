package conversation

import (
	"regexp"
	"strings"
	"time"
)

// Identity holds the fields gathered during intake.
type Identity struct {
	FirstName string
	LastName  string
	DOB       time.Time
	HasDOB    bool
	Phone     string
	Email     string
}

// ScheduleRequest is a parsed provider-and-date preference.
type ScheduleRequest struct {
	Provider string
	Date     time.Time
}

// UtteranceParser extracts structured fields from free-text patient
// messages. The boundary exists so a smarter extractor can replace the
// regex one without touching the stages.
type UtteranceParser interface {
	ParseIdentity(utterance string) Identity
	ParseScheduleRequest(utterance string) (ScheduleRequest, bool)
}

var (
	dateRE   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	doctorRE = regexp.MustCompile(`(?i)\bdr\.?\s+([a-z]+)(?:\s+([a-z]+))?`)
	nameRE   = regexp.MustCompile(`\b([A-Z][a-z]+)\s+([A-Z][a-z]+)\b`)
	phoneRE  = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)
	emailRE  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// RegexParser is the default pattern-based utterance parser.
type RegexParser struct{}

// NewRegexParser returns the default parser.
func NewRegexParser() *RegexParser { return &RegexParser{} }

// ParseIdentity pulls name, date of birth, phone, and email out of an
// intake message. Missing fields stay zero; intake keeps prompting.
func (p *RegexParser) ParseIdentity(utterance string) Identity {
	var id Identity

	// Strip a doctor mention so "with Dr. Asha Rao" never reads as the
	// patient's own name.
	withoutDoctor := doctorRE.ReplaceAllString(utterance, "")
	if m := nameRE.FindStringSubmatch(withoutDoctor); len(m) > 2 {
		id.FirstName = m[1]
		id.LastName = m[2]
	}

	if m := dateRE.FindStringSubmatch(utterance); len(m) > 1 {
		if dob, err := time.Parse("2006-01-02", m[1]); err == nil {
			id.DOB = dob
			id.HasDOB = true
		}
	}

	if m := emailRE.FindString(utterance); m != "" {
		id.Email = m
	}
	withoutDOB := dateRE.ReplaceAllString(utterance, "")
	withoutEmail := emailRE.ReplaceAllString(withoutDOB, "")
	if m := phoneRE.FindString(withoutEmail); m != "" {
		id.Phone = strings.TrimSpace(m)
	}

	return id
}

// ParseScheduleRequest reads "Dr. First Last" plus a YYYY-MM-DD date.
func (p *RegexParser) ParseScheduleRequest(utterance string) (ScheduleRequest, bool) {
	dm := doctorRE.FindStringSubmatch(utterance)
	dt := dateRE.FindStringSubmatch(utterance)
	if len(dm) < 2 || len(dt) < 2 {
		return ScheduleRequest{}, false
	}
	date, err := time.Parse("2006-01-02", dt[1])
	if err != nil {
		return ScheduleRequest{}, false
	}

	parts := []string{"dr", strings.ToLower(dm[1])}
	if dm[2] != "" {
		parts = append(parts, strings.ToLower(dm[2]))
	}
	return ScheduleRequest{Provider: strings.Join(parts, "-"), Date: date}, true
}

var _ UtteranceParser = (*RegexParser)(nil)
