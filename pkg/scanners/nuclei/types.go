package nuclei

import (
	"encoding/json"
	"strings"
)

// Result represents a single finding from the JSON Lines output of
// Nuclei releases before 2.5.3 (camelCase keys, "matched" and "templateID").
type Result struct {
	// Template information
	TemplateID string       `json:"templateID"`
	Info       TemplateInfo `json:"info"`

	// Target information
	Type    string `json:"type"` // http, dns, network, ...
	Host    string `json:"host"`
	Matched string `json:"matched"`
	IP      string `json:"ip,omitempty"`

	// Match details
	ExtractedResults []string `json:"extracted_results,omitempty"`
	Request          string   `json:"request,omitempty"`
	Response         string   `json:"response,omitempty"`
	MatcherName      string   `json:"matcher_name,omitempty"`

	// Timestamp, RFC 3339
	Timestamp string `json:"timestamp,omitempty"`
}

// TemplateInfo contains information about the template that matched.
type TemplateInfo struct {
	// Identity
	Name        string     `json:"name"`
	Author      StringList `json:"author,omitempty"`
	Tags        StringList `json:"tags,omitempty"`
	Description string     `json:"description,omitempty"`

	// Classification
	Severity   string     `json:"severity"`
	Reference  StringList `json:"reference,omitempty"`
	References StringList `json:"references,omitempty"`
	CWE        StringList `json:"cwe,omitempty"`
	CAPEC      StringList `json:"capec,omitempty"`

	// Remediation
	Impact           string `json:"impact,omitempty"`
	Resolution       string `json:"resolution,omitempty"`
	EaseOfResolution string `json:"easeofresolution,omitempty"`
}

// StringList accepts either a JSON string or an array of strings. Templates
// of that era used both shapes for author, tags and reference fields.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = StringList{single}
		}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// CommaSplit splits comma-separated entries ("cve,rce") into single values.
func (l StringList) CommaSplit() []string {
	var out []string
	for _, v := range l {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
