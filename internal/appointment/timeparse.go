package appointment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Patterns for the time-token shapes patients actually type.
var (
	separatedTimeRE = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})\s*(am|pm)?$`)
	compactTimeRE   = regexp.MustCompile(`^(\d{3,4})\s*(am|pm)?$`)
	bareHourRE      = regexp.MustCompile(`^(\d{1,2})\s*(am|pm)?$`)

	tokenScanRE = regexp.MustCompile(`(?i)\b\d{1,2}[:.]\d{2}\s*(?:am|pm)?\b|\b\d{3,4}\s*(?:am|pm)?\b|\b\d{1,2}\s*(?:am|pm)\b`)

	optionRE  = regexp.MustCompile(`(?i)(?:^|\b)(?:option|number|choice|#)\s*(\d+)\b`)
	bareNumRE = regexp.MustCompile(`^\s*(\d{1,2})\s*$`)
)

// ordinalWords maps selection ordinals to 1-based indices.
var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"1st": 1, "2nd": 2, "3rd": 3, "4th": 4, "5th": 5,
}

// NormalizeTimeToken converts one time token to canonical 24-hour "HH:MM".
// Accepted shapes: "9", "9am", "9:30", "11.30am", "930pm", "0930".
// Anything outside 00:00-23:59 is rejected.
func NormalizeTimeToken(token string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(token))
	if cleaned == "" {
		return "", &ValidationError{Reason: "empty time"}
	}

	var hour, minute int
	var meridiem string

	switch {
	case separatedTimeRE.MatchString(cleaned):
		m := separatedTimeRE.FindStringSubmatch(cleaned)
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		meridiem = m[3]
	case compactTimeRE.MatchString(cleaned):
		m := compactTimeRE.FindStringSubmatch(cleaned)
		digits := m[1]
		hour, _ = strconv.Atoi(digits[:len(digits)-2])
		minute, _ = strconv.Atoi(digits[len(digits)-2:])
		meridiem = m[2]
	case bareHourRE.MatchString(cleaned):
		m := bareHourRE.FindStringSubmatch(cleaned)
		hour, _ = strconv.Atoi(m[1])
		meridiem = m[2]
	default:
		return "", &ValidationError{Reason: fmt.Sprintf("unrecognized time %q", token)}
	}

	if meridiem != "" {
		if hour < 1 || hour > 12 {
			return "", &ValidationError{Reason: fmt.Sprintf("hour %d does not take %s", hour, meridiem)}
		}
		if meridiem == "pm" && hour != 12 {
			hour += 12
		}
		if meridiem == "am" && hour == 12 {
			hour = 0
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", &ValidationError{Reason: fmt.Sprintf("time %q out of range", token)}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// ExtractTimeToken scans an utterance for the first time-like token.
func ExtractTimeToken(utterance string) (string, bool) {
	match := tokenScanRE.FindString(utterance)
	if match == "" {
		return "", false
	}
	return strings.TrimSpace(match), true
}

// ExtractOptionIndex reads a 1-based candidate selection from the
// utterance. Valid only when the value lands in [1, n].
func ExtractOptionIndex(utterance string, n int) (int, bool) {
	msg := strings.ToLower(strings.TrimSpace(utterance))
	if msg == "" || n <= 0 {
		return 0, false
	}
	if m := optionRE.FindStringSubmatch(msg); len(m) > 1 {
		if idx, err := strconv.Atoi(m[1]); err == nil && idx >= 1 && idx <= n {
			return idx, true
		}
		return 0, false
	}
	for word, idx := range ordinalWords {
		if strings.Contains(msg, word) && idx >= 1 && idx <= n {
			return idx, true
		}
	}
	if m := bareNumRE.FindStringSubmatch(msg); len(m) > 1 {
		if idx, err := strconv.Atoi(m[1]); err == nil && idx >= 1 && idx <= n {
			return idx, true
		}
	}
	return 0, false
}
