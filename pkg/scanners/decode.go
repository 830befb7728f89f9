// Package scanners dispatches raw scanner reports to their format decoder.
// The set of formats is closed: every ris.Format has exactly one decoder.
package scanners

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"slices"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/scanners/nexpose"
	"github.com/exploopio/scanimport/pkg/scanners/nuclei"
	"github.com/exploopio/scanimport/pkg/scanners/webfuzzer"
	"github.com/exploopio/scanimport/pkg/scanners/whatweb"
	"github.com/exploopio/scanimport/pkg/scanners/zap"
)

const opDecode = "scanners.Decode"

// Parser decodes one report format into the intermediate record set.
type Parser interface {
	// Format returns the format tag handled by the parser.
	Format() ris.Format

	// Parse decodes a complete report buffer. A structural failure returns
	// a KindMalformed error and no report.
	Parse(data []byte) (*ris.Report, error)
}

var (
	nexposeParser   = nexpose.NewParser()
	nucleiParser    = nuclei.NewParser()
	webfuzzerParser = webfuzzer.NewParser()
	whatwebParser   = whatweb.NewParser()
	zapParser       = zap.NewParser()
)

// parserFor returns the decoder of format, or nil.
func parserFor(format ris.Format) Parser {
	switch format {
	case ris.FormatNexposeFull:
		return nexposeParser
	case ris.FormatNucleiLegacy:
		return nucleiParser
	case ris.FormatWebfuzzer:
		return webfuzzerParser
	case ris.FormatWhatWeb:
		return whatwebParser
	case ris.FormatZAP:
		return zapParser
	default:
		return nil
	}
}

// Decode runs the decoder of raw.Format. An unknown tag yields a
// KindUnsupportedFormat error. A panic inside a decoder is reported as a
// malformed report.
func Decode(raw ris.RawReport) (*ris.Report, error) {
	p := parserFor(raw.Format)
	if p == nil {
		return nil, ierrors.E(ierrors.KindUnsupportedFormat, opDecode, fmt.Sprintf("unsupported format %q", raw.Format))
	}
	return parse(p, raw)
}

func parse(p Parser, raw ris.RawReport) (report *ris.Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			report = nil
			err = ierrors.Malformed(opDecode, fmt.Sprintf("%s decoder failed", raw.Format), fmt.Errorf("panic: %v", rec))
		}
	}()

	report, err = p.Parse(raw.Data)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Formats returns the decodable formats in sorted order.
func Formats() []ris.Format {
	var formats []ris.Format
	for _, f := range ris.Formats() {
		if parserFor(f) != nil {
			formats = append(formats, f)
		}
	}
	slices.Sort(formats)
	return formats
}

// =============================================================================
// Format detection
// =============================================================================

var (
	whatwebKeys = []string{"target", "http_status", "plugins"}
	nucleiKeys  = []string{"matched", "templateID", "host"}
)

// Detect sniffs the format of a report buffer: the XML root element for
// Nexpose and ZAP, the object keys for WhatWeb and legacy Nuclei, and the
// scan banner for Webfuzzer.
func Detect(data []byte) (ris.Format, bool) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return "", false
	}

	switch trimmed[0] {
	case '<':
		switch xmlRoot(trimmed) {
		case "NexposeReport":
			return ris.FormatNexposeFull, true
		case "OWASPZAPReport":
			return ris.FormatZAP, true
		}
	case '[':
		if isWhatWeb(trimmed) {
			return ris.FormatWhatWeb, true
		}
	case '{':
		if isNucleiLine(trimmed) {
			return ris.FormatNucleiLegacy, true
		}
	}

	if webfuzzer.HasBanner(string(trimmed)) {
		return ris.FormatWebfuzzer, true
	}
	return "", false
}

func xmlRoot(data []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local
		}
	}
}

func isWhatWeb(data []byte) bool {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return false
	}
	for _, entry := range entries {
		if hasKeys(entry, whatwebKeys) {
			return true
		}
	}
	return false
}

func isNucleiLine(data []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !sc.Scan() {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(sc.Bytes(), &obj); err != nil {
		return false
	}
	return hasKeys(obj, nucleiKeys)
}

func hasKeys(obj map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}
