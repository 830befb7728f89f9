// Package nuclei decodes the JSON Lines output of legacy Nuclei releases.
package nuclei

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/references"
	"github.com/exploopio/scanimport/pkg/shared/severity"
)

const opParse = "nuclei.Parse"

// Parser converts Nuclei JSON Lines output to the intermediate record set.
type Parser struct{}

// NewParser creates a new Nuclei parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format returns the format handled by this parser.
func (p *Parser) Format() ris.Format {
	return ris.FormatNucleiLegacy
}

// Parse decodes Nuclei JSON Lines output. Any line that is not a JSON object
// makes the whole report Malformed. Results without a host or a template
// name are recorded in Report.Skipped.
func (p *Parser) Parse(data []byte) (*ris.Report, error) {
	results, err := p.parseJSONLines(data)
	if err != nil {
		return nil, err
	}

	report := ris.NewReport(ris.FormatNucleiLegacy)
	hosts := make(map[string]int)

	for _, result := range results {
		tgt, finding, err := p.toFinding(result)
		if err != nil {
			report.Skip(err)
			continue
		}

		idx, ok := hosts[tgt.address]
		if !ok {
			idx = len(report.Hosts)
			hosts[tgt.address] = idx
			report.Hosts = append(report.Hosts, ris.Host{Address: tgt.address})
		}
		host := &report.Hosts[idx]
		if tgt.hostname != "" && !slices.Contains(host.Hostnames, tgt.hostname) {
			host.Hostnames = append(host.Hostnames, tgt.hostname)
		}

		svc := serviceFor(host, tgt)
		svc.Findings = append(svc.Findings, finding)
	}

	return report, nil
}

// parseJSONLines parses Nuclei's JSON Lines output format.
func (p *Parser) parseJSONLines(data []byte) ([]Result, error) {
	var results []Result

	scanner := bufio.NewScanner(bytes.NewReader(data))
	// Increase buffer size for large responses
	const maxCapacity = 10 * 1024 * 1024 // 10MB
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxCapacity)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var result Result
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, ierrors.Malformed(opParse, fmt.Sprintf("line %d is not a JSON object", line), err)
		}
		results = append(results, result)
	}

	if err := scanner.Err(); err != nil {
		return nil, ierrors.Malformed(opParse, "error reading output", err)
	}

	return results, nil
}

// target is the decomposed host URL of a result.
type target struct {
	address  string
	hostname string
	scheme   string
	port     int
}

func parseTarget(host, ip string) (target, error) {
	u, err := url.Parse(host)
	if err != nil || u.Hostname() == "" {
		// Network templates report bare host:port targets.
		u, err = url.Parse("//" + host)
		if err != nil || u.Hostname() == "" {
			return target{}, ierrors.MissingField(opParse, "host")
		}
	}

	t := target{
		hostname: u.Hostname(),
		scheme:   strings.ToLower(u.Scheme),
	}

	t.port, _ = strconv.Atoi(u.Port())
	if t.port == 0 {
		if t.scheme == "https" {
			t.port = 443
		} else {
			t.port = 80
		}
	}

	t.address = strings.TrimSpace(ip)
	if t.address == "" {
		t.address = t.hostname
	}
	if net.ParseIP(t.hostname) != nil {
		t.hostname = ""
	}
	return t, nil
}

// serviceFor returns the service of host matching the target port, creating
// it when absent.
func serviceFor(host *ris.Host, t target) *ris.Service {
	for i := range host.Services {
		if host.Services[i].Port == t.port {
			return &host.Services[i]
		}
	}

	name := t.scheme
	if name == "" {
		name = "unknown"
	}
	host.Services = append(host.Services, ris.Service{
		Name:        name,
		Protocol:    "tcp",
		Port:        t.port,
		Status:      "open",
		Description: "web server",
	})
	return &host.Services[len(host.Services)-1]
}

func (p *Parser) toFinding(result Result) (target, ris.Finding, error) {
	if strings.TrimSpace(result.Host) == "" {
		return target{}, ris.Finding{}, ierrors.MissingField(opParse, "host")
	}
	if strings.TrimSpace(result.Info.Name) == "" {
		return target{}, ris.Finding{}, ierrors.MissingField(opParse, "info.name")
	}

	t, err := parseTarget(result.Host, result.IP)
	if err != nil {
		return target{}, ris.Finding{}, err
	}

	info := result.Info
	var refs []string
	for _, r := range info.Reference {
		refs = append(refs, references.SplitBulleted(r)...)
	}
	for _, r := range info.References {
		refs = append(refs, references.SplitBulleted(r)...)
	}

	description := info.Description
	if description == "" {
		description = info.Name
	}

	tags := info.Tags.CommaSplit()

	finding := ris.Finding{
		Name:             info.Name,
		Description:      description,
		Severity:         severity.FromText(info.Severity),
		References:       references.Aggregate(refs, info.CWE, info.CAPEC),
		Resolution:       info.Resolution,
		ExternalID:       "NUCLEI-" + result.TemplateID,
		Tags:             tags,
		Impact:           info.Impact,
		EaseOfResolution: info.EaseOfResolution,
		Data: strings.Join([]string{
			"Matched: " + result.Matched,
			"Tags: " + strings.Join(tags, ","),
			"Template ID: " + result.TemplateID,
		}, "\n"),
		Web: webContext(result),
	}

	if result.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, result.Timestamp); err == nil {
			finding.DetectedAt = &ts
		}
	}

	return t, finding, nil
}

// webContext locates a result through its matched URL.
func webContext(result Result) *ris.WebContext {
	web := &ris.WebContext{
		Website:  result.Host,
		Method:   firstToken(result.Request),
		Request:  result.Request,
		Response: result.Response,
	}

	if u, err := url.Parse(result.Matched); err == nil {
		web.Path, web.Params = splitParams(u.Path)
		web.Query = u.RawQuery
	}
	return web
}

// splitParams separates the ";params" part of the last path segment.
func splitParams(path string) (string, string) {
	last := strings.LastIndex(path, "/") + 1
	if i := strings.Index(path[last:], ";"); i >= 0 {
		return path[:last+i], path[last+i+1:]
	}
	return path, ""
}

func firstToken(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
