// Package zap decodes OWASP ZAP XML reports.
package zap

import (
	"encoding/xml"
	"net"
	"strconv"
	"strings"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/richtext"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/references"
	"github.com/exploopio/scanimport/pkg/shared/severity"
	"github.com/exploopio/scanimport/pkg/shared/weburl"
)

const opParse = "zap.Parse"

// Parser converts ZAP XML reports to the intermediate record set.
type Parser struct{}

// NewParser creates a new ZAP parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format returns the format handled by this parser.
func (p *Parser) Format() ris.Format {
	return ris.FormatZAP
}

// Parse decodes a ZAP XML report. Every alert occurrence becomes one web
// finding on the service of its site.
func (p *Parser) Parse(data []byte) (*ris.Report, error) {
	var doc Report
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, ierrors.Malformed(opParse, "invalid OWASPZAPReport document", err)
	}

	report := ris.NewReport(ris.FormatZAP)
	hosts := make(map[string]int)

	for _, site := range doc.Sites {
		svc, err := toService(site)
		if err != nil {
			report.Skip(err)
			continue
		}

		for _, alert := range site.Alerts {
			findings, errs := toFindings(alert)
			for _, err := range errs {
				report.Skip(err)
			}
			svc.Findings = append(svc.Findings, findings...)
		}

		address := strings.TrimSpace(site.Host)
		idx, ok := hosts[address]
		if !ok {
			idx = len(report.Hosts)
			hosts[address] = idx
			host := ris.Host{Address: address}
			if net.ParseIP(address) == nil {
				host.Hostnames = []string{address}
			}
			report.Hosts = append(report.Hosts, host)
		}
		report.Hosts[idx].Services = append(report.Hosts[idx].Services, svc)
	}

	return report, nil
}

func toService(site Site) (ris.Service, error) {
	if strings.TrimSpace(site.Host) == "" {
		return ris.Service{}, ierrors.MissingField(opParse, "site.host")
	}
	port, err := strconv.Atoi(strings.TrimSpace(site.Port))
	if err != nil || port <= 0 || port > 65535 {
		return ris.Service{}, ierrors.MissingField(opParse, "site.port")
	}

	name := "http"
	if site.SSL == "true" {
		name = "https"
	}
	return ris.Service{
		Name:     name,
		Protocol: "tcp",
		Port:     port,
		Status:   "open",
	}, nil
}

// toFindings expands an alert into one finding per instance. An alert
// without instances is its own single occurrence.
func toFindings(alert AlertItem) ([]ris.Finding, []error) {
	name := strings.TrimSpace(alert.Alert)
	if name == "" {
		name = strings.TrimSpace(alert.Name)
	}
	if name == "" {
		return nil, []error{ierrors.MissingField(opParse, "alertitem.alert")}
	}

	base := ris.Finding{
		Name:        name,
		Description: richtext.StripTags(alert.Desc),
		Severity:    severity.ParseRiskCode(alert.RiskCode),
		References:  alertReferences(alert),
		Resolution:  richtext.StripTags(alert.Solution),
		ExternalID:  "ZAP-" + strings.TrimSpace(alert.PluginID),
	}

	instances := alert.Instances
	if len(instances) == 0 {
		instances = []Instance{alert.Instance}
	}

	var (
		findings []ris.Finding
		errs     []error
	)
	for _, inst := range instances {
		web, err := webContext(inst)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		f := base
		f.References = append([]string(nil), base.References...)
		f.Web = web
		f.Data = instanceData(inst)
		findings = append(findings, f)
	}
	return findings, errs
}

// alertReferences splits the HTML reference field on paragraph ends and adds
// the CWE and WASC ids.
func alertReferences(alert AlertItem) []string {
	var refs []string
	for _, link := range strings.Split(alert.Reference, "</p>") {
		link = strings.ReplaceAll(strings.TrimSpace(link), "\n", "")
		if link != "" {
			refs = append(refs, richtext.StripTags(link))
		}
	}
	refs = append(refs,
		references.Prefixed("CWE", alert.CWEID),
		references.Prefixed("WASC", alert.WASCID),
	)
	return references.Aggregate(refs)
}

func webContext(inst Instance) (*ris.WebContext, error) {
	uri := strings.TrimSpace(inst.URI)
	if uri == "" {
		return nil, ierrors.MissingField(opParse, "instance.uri")
	}
	loc, err := weburl.Parse(uri)
	if err != nil {
		return nil, ierrors.E(ierrors.KindMissingField, opParse, "unparseable instance.uri", err)
	}

	return &ris.WebContext{
		Website:   loc.Website,
		Method:    strings.TrimSpace(inst.Method),
		Path:      loc.Path,
		Query:     loc.Query,
		Params:    loc.Params,
		ParamName: inst.Param,
	}, nil
}

// instanceData renders the URL, the payload or parameter, and the evidence
// of an occurrence.
func instanceData(inst Instance) string {
	var b strings.Builder
	b.WriteString("URL:\n " + inst.URI + "\n")
	switch {
	case inst.Attack != "" && inst.Param != "":
		b.WriteString(" Payload:\n " + inst.Param + " = " + inst.Attack + "\n")
	case inst.Param != "":
		b.WriteString(" Parameter:\n " + inst.Param + "\n")
	}
	if inst.Evidence != "" {
		b.WriteString(" Evidence:\n " + inst.Evidence + "\n")
	}
	return b.String()
}
