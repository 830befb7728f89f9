// Package severity provides the canonical severity scale for findings and the
// mappings from every scanner-specific representation onto it.
//
// A Level is always one of exactly five values. Raw scanner scores never
// leave the decoders: they are resolved here before a finding is emitted.
package severity

import (
	"math"
	"strconv"
	"strings"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
)

// Level represents a severity level for security findings.
type Level string

const (
	// Critical - Immediate action required. Actively exploited or trivially exploitable.
	Critical Level = "critical"

	// High - Serious vulnerability that should be addressed urgently.
	High Level = "high"

	// Medium - Moderate risk, should be addressed in normal development cycle.
	Medium Level = "medium"

	// Low - Minor issue, address when convenient.
	Low Level = "low"

	// Info - Informational finding, no security impact.
	Info Level = "info"
)

// AllLevels returns all severity levels in order of priority (highest first).
func AllLevels() []Level {
	return []Level{Critical, High, Medium, Low, Info}
}

// String returns the string representation of the severity level.
func (l Level) String() string {
	return string(l)
}

// Valid reports whether l is one of the five defined levels.
func (l Level) Valid() bool {
	return l.Priority() > 0
}

// Priority returns the numeric priority of the severity level.
// Higher numbers = higher priority.
func (l Level) Priority() int {
	switch l {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// Numeric 0-10 scores (Nexpose definitions, CVSS-like)
// =============================================================================

// FromScore maps a 0-10 score onto a level:
//   - 0: Info
//   - 1-3: Low
//   - 4-6: Medium
//   - 7-8: High
//   - 9-10: Critical
//
// Fractional scores fall into the band of their integer part. Scores outside
// the closed range [0,10] are rejected with ErrInvalidSeverityScore rather
// than clamped.
func FromScore(score float64) (Level, error) {
	if math.IsNaN(score) || score < 0 || score > 10 {
		return "", ierrors.E(ierrors.KindInvalidSeverityScore, "severity.FromScore",
			"score "+strconv.FormatFloat(score, 'g', -1, 64)+" outside [0,10]")
	}

	switch {
	case score >= 9:
		return Critical, nil
	case score >= 7:
		return High, nil
	case score >= 4:
		return Medium, nil
	case score >= 1:
		return Low, nil
	default:
		return Info, nil
	}
}

// ParseScore is FromScore for textual scores as they appear in report
// attributes. Text that is not a number is an invalid score as well.
func ParseScore(s string) (Level, error) {
	score, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return "", ierrors.E(ierrors.KindInvalidSeverityScore, "severity.ParseScore",
			"score "+strconv.Quote(s)+" is not numeric", err)
	}
	return FromScore(score)
}

// =============================================================================
// Small integer risk codes (ZAP riskcode)
// =============================================================================

// riskCodes is the explicit risk-code table. Codes outside it are
// informational: these formats use a missing risk to mean "no risk".
var riskCodes = map[int]Level{
	0: Info,
	1: Low,
	2: Medium,
	3: High,
}

// FromRiskCode maps a risk code onto a level, defaulting to Info.
func FromRiskCode(code int) Level {
	if lvl, ok := riskCodes[code]; ok {
		return lvl
	}
	return Info
}

// ParseRiskCode is FromRiskCode for textual codes. Non-numeric text is Info.
func ParseRiskCode(s string) Level {
	code, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Info
	}
	return FromRiskCode(code)
}

// =============================================================================
// Free-text levels (Nuclei, generic)
// =============================================================================

// FromString normalizes various severity string formats to a Level.
// The boolean is false when the text names no known level.
func FromString(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL", "CRIT":
		return Critical, true
	case "HIGH", "ERROR", "SEVERE":
		return High, true
	case "MEDIUM", "MODERATE", "WARNING", "WARN", "MED":
		return Medium, true
	case "LOW":
		return Low, true
	case "INFO", "INFORMATIONAL", "NOTE", "NONE", "UNKNOWN":
		return Info, true
	default:
		return "", false
	}
}

// FromText is FromString with unrecognized text treated as Info.
func FromText(s string) Level {
	if lvl, ok := FromString(s); ok {
		return lvl
	}
	return Info
}

// CountBySeverity counts findings by severity level.
type CountBySeverity struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Increment increases the count for the given severity.
// Levels outside the scale are counted as Info.
func (c *CountBySeverity) Increment(level Level) {
	c.Total++
	switch level {
	case Critical:
		c.Critical++
	case High:
		c.High++
	case Medium:
		c.Medium++
	case Low:
		c.Low++
	default:
		c.Info++
	}
}

// HighestSeverity returns the highest severity level that has a non-zero count.
// An empty count reports Info.
func (c *CountBySeverity) HighestSeverity() Level {
	if c.Critical > 0 {
		return Critical
	}
	if c.High > 0 {
		return High
	}
	if c.Medium > 0 {
		return Medium
	}
	if c.Low > 0 {
		return Low
	}
	return Info
}
