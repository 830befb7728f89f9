// Package webfuzzer decodes the plain-text reports of webfuzzer.
package webfuzzer

import (
	"fmt"
	"strconv"
	"strings"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/severity"
	"github.com/exploopio/scanimport/pkg/shared/weburl"
)

const opParse = "webfuzzer.Parse"

// Parser converts Webfuzzer text reports to the intermediate record set.
type Parser struct{}

// NewParser creates a new Webfuzzer parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format returns the format handled by this parser.
func (p *Parser) Format() ris.Format {
	return ris.FormatWebfuzzer
}

// Parse decodes a Webfuzzer report. A report without the scan banner is
// Malformed. The report yields one host with one TCP service on the banner
// port; every request block becomes a web finding on that service.
func (p *Parser) Parse(data []byte) (*ris.Report, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	banner, err := parseBanner(text)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(banner.Port)
	if err != nil || port <= 0 || port > 65535 {
		return nil, ierrors.Malformed(opParse, "invalid banner port "+strconv.Quote(banner.Port), err)
	}

	svc := ris.Service{
		Name:     "http",
		Protocol: "tcp",
		Port:     port,
		Status:   "open",
		Version:  ParseServerHeader(text),
	}

	report := ris.NewReport(ris.FormatWebfuzzer)
	requests, errs := ParseRequests(text)
	for _, err := range errs {
		report.Skip(err)
	}
	for _, req := range requests {
		svc.Findings = append(svc.Findings, toFinding(banner, req))
	}

	report.Hosts = append(report.Hosts, ris.Host{
		Address:       banner.Address,
		Hostnames:     []string{banner.Hostname},
		WithInterface: true,
		Attributes:    map[string]string{"website": banner.Hostname, "uri": banner.URI},
		Services:      []ris.Service{svc},
	})
	return report, nil
}

func parseBanner(text string) (Banner, error) {
	m := bannerPattern.FindStringSubmatch(text)
	if m == nil {
		return Banner{}, ierrors.Malformed(opParse, "scan banner not found", nil)
	}
	return Banner{Hostname: m[1], Port: m[2], URI: m[3], Address: m[4]}, nil
}

// HasBanner reports whether text carries a Webfuzzer scan banner.
func HasBanner(text string) bool {
	return bannerPattern.MatchString(text)
}

// ParseServerHeader returns the "Server header:" block, or "" when the
// report has none.
func ParseServerHeader(text string) string {
	m := serverHeaderPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseRequests extracts every request block. Blocks without the
// "description(url)\n--[ response" layout are returned as errors.
func ParseRequests(text string) ([]Request, []error) {
	var (
		requests []Request
		errs     []error
	)
	for i, m := range requestPattern.FindAllStringSubmatch(text, -1) {
		body := requestBodyPattern.FindStringSubmatch(m[2])
		if body == nil || strings.TrimSpace(body[1]) == "" {
			errs = append(errs, ierrors.E(ierrors.KindMissingField, opParse,
				fmt.Sprintf("request block %d: missing description, url or response", i+1)))
			continue
		}
		requests = append(requests, Request{
			Method:      m[1],
			Description: strings.TrimSpace(body[1]),
			URL:         strings.TrimSpace(body[2]),
			Response:    body[3],
		})
	}
	return requests, errs
}

func toFinding(banner Banner, req Request) ris.Finding {
	web := &ris.WebContext{
		Website:  banner.Hostname,
		Method:   req.Method,
		Path:     req.URL,
		Response: req.Response,
	}
	if loc, err := weburl.Parse(req.URL); err == nil {
		web.Path = loc.Path
		web.Query = loc.Query
		web.Params = loc.Params
	}

	return ris.Finding{
		Name:     req.Description,
		Severity: severity.Info,
		Data:     req.URL,
		Web:      web,
	}
}
