package logging

import (
	"regexp"
	"strings"
)

// Patient-identifying attribute names that must never reach a log line.
var sensitiveFields = []string{
	"patientname",
	"patient_name",
	"patientid",
	"patient_id",
	"patientbirthdate",
	"patient_birth_date",
	"patientaddress",
	"accessionnumber",
	"accession_number",
	"otherpatientids",
	"referringphysicianname",
	"institutionname",
}

// Patterns for identifiers embedded in free text.
var phiPatterns = []*regexp.Regexp{
	// DICOM person name with component separators, e.g. DOE^JANE
	regexp.MustCompile(`\b[A-Z][A-Za-z'-]+\^[A-Z][A-Za-z'-]+(\^[A-Za-z'-]*)*\b`),
	// key=value or key: value forms
	regexp.MustCompile(`(?i)(patient_?name|patient_?id|accession_?number|patient_?birth_?date)\s*[=:]\s*["']?[^\s,;"']+["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces patient identifiers in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range phiPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// RedactMap redacts sensitive fields in a map.
func RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))

	for k, v := range m {
		if IsSensitiveField(k) {
			result[k] = RedactedValue
		} else if nested, ok := v.(map[string]any); ok {
			result[k] = RedactMap(nested)
		} else if str, ok := v.(string); ok {
			result[k] = Redact(str)
		} else {
			result[k] = v
		}
	}

	return result
}

// RedactAttributes returns a copy of display set attributes safe for logging.
func RedactAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	result := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if IsSensitiveField(k) {
			result[k] = RedactedValue
			continue
		}
		result[k] = Redact(v)
	}
	return result
}

// IsSensitiveField checks if an attribute name identifies a patient.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
