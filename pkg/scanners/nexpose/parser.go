// Package nexpose decodes Nexpose XML 2.0 ("full") reports.
package nexpose

import (
	"encoding/xml"
	"slices"
	"strconv"
	"strings"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/richtext"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/references"
	"github.com/exploopio/scanimport/pkg/shared/severity"
)

const (
	opParse = "nexpose.Parse"

	// webPrefix marks definitions whose findings are web-context.
	webPrefix = "http-"
)

// Parser converts Nexpose XML reports to the intermediate record set.
type Parser struct{}

// NewParser creates a new Nexpose parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format returns the format handled by this parser.
func (p *Parser) Format() ris.Format {
	return ris.FormatNexposeFull
}

// Parse decodes a Nexpose XML report. Invalid XML or a different root
// element is Malformed. Definitions with an invalid severity and nodes
// without an address are recorded in Report.Skipped and dropped.
func (p *Parser) Parse(data []byte) (*ris.Report, error) {
	var doc Report
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, ierrors.Malformed(opParse, "invalid NexposeReport document", err)
	}

	report := ris.NewReport(ris.FormatNexposeFull)
	defs := p.ParseDefinitions(doc.Definitions, report)

	for _, node := range doc.Nodes {
		host, err := p.toHost(node, defs, report)
		if err != nil {
			report.Skip(err)
			continue
		}
		report.Hosts = append(report.Hosts, host)
	}

	return report, nil
}

// ParseDefinitions builds the vulnerability catalog of a report. Entries that
// cannot be resolved are recorded on report and left out.
func (p *Parser) ParseDefinitions(vulns []Vulnerability, report *ris.Report) *ris.Definitions {
	defs := make([]ris.VulnerabilityDefinition, 0, len(vulns))
	for _, v := range vulns {
		def, err := toDefinition(v)
		if err != nil {
			report.Skip(err)
			continue
		}
		defs = append(defs, def)
	}
	return ris.NewDefinitions(defs...)
}

func toDefinition(v Vulnerability) (ris.VulnerabilityDefinition, error) {
	id := strings.ToLower(strings.TrimSpace(v.ID))
	if id == "" {
		return ris.VulnerabilityDefinition{}, ierrors.MissingField(opParse, "vulnerability.id")
	}
	if strings.TrimSpace(v.Title) == "" {
		return ris.VulnerabilityDefinition{}, ierrors.MissingField(opParse, "vulnerability.title")
	}

	if strings.TrimSpace(v.Severity) == "" {
		return ris.VulnerabilityDefinition{}, ierrors.MissingField(opParse, "vulnerability.severity")
	}
	sev, err := severity.ParseScore(v.Severity)
	if err != nil {
		return ris.VulnerabilityDefinition{}, ierrors.Wrap(err, opParse+" "+id)
	}

	refs := []string{id}
	if v.CVSSVector != "" {
		refs = append(refs, "vector: "+v.CVSSVector)
	}
	for _, e := range v.Exploits {
		skill := e.SkillLevel
		if skill == "" {
			skill = e.LegacySkillLevel
		}
		if ref, ok := references.Exploit(e.Title, e.Link, e.Type, skill); ok {
			refs = append(refs, ref)
		}
	}
	refs = append(refs, v.Malware...)
	for _, r := range v.References {
		refs = append(refs, r.Value)
	}

	tags := make([]string, 0, len(v.Tags))
	for _, t := range v.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}

	return ris.VulnerabilityDefinition{
		ID:          id,
		Name:        v.Title,
		Description: richtext.FlattenAll(v.Description.Nodes),
		Severity:    sev,
		References:  references.Aggregate(refs),
		Resolution:  richtext.FlattenAll(v.Solution.Nodes),
		Web:         strings.HasPrefix(id, webPrefix),
		RiskScore:   v.RiskScore,
		Tags:        tags,
	}, nil
}

func (p *Parser) toHost(node Node, defs *ris.Definitions, report *ris.Report) (ris.Host, error) {
	address := strings.TrimSpace(node.Address)
	if address == "" {
		return ris.Host{}, ierrors.MissingField(opParse, "node.address")
	}

	host := ris.Host{
		Address:         address,
		HardwareAddress: strings.TrimSpace(node.HardwareAddress),
		Attributes:      nodeAttributes(node),
		WithInterface:   true,
	}

	for _, name := range node.Names {
		if name = strings.TrimSpace(name); name != "" {
			host.Hostnames = append(host.Hostnames, name)
		}
	}
	for _, os := range node.OS {
		host.OS = append(host.OS, ris.OSFingerprint{
			Certainty:   os.Certainty,
			Vendor:      os.Vendor,
			Family:      os.Family,
			Product:     os.Product,
			Version:     os.Version,
			Arch:        os.Arch,
			DeviceClass: os.DeviceClass,
		})
	}
	for _, fp := range node.Fingerprints {
		host.Fingerprints = append(host.Fingerprints, ris.Fingerprint{
			Certainty:   fp.Certainty,
			Description: fp.Description,
			Vendor:      fp.Vendor,
			Family:      fp.Family,
			Product:     fp.Product,
			Version:     fp.Version,
		})
	}
	for _, sw := range node.Software {
		host.Software = append(host.Software, ris.SoftwareFingerprint{
			Certainty:     sw.Certainty,
			Vendor:        sw.Vendor,
			Family:        sw.Family,
			Product:       sw.Product,
			Version:       sw.Version,
			SoftwareClass: sw.SoftwareClass,
		})
	}

	host.Findings = resolveTests(node.Tests, defs, address)

	for _, ep := range node.Endpoints {
		svc, err := toService(ep, defs, address)
		if err != nil {
			report.Skip(err)
			continue
		}
		host.Services = append(host.Services, svc)
	}

	return host, nil
}

// nodeAttributes keeps the site and scan attributes of a node. Older exports
// name the site attributes scan-name and scan-importance.
func nodeAttributes(node Node) map[string]string {
	attrs := make(map[string]string)
	set := func(key string, values ...string) {
		for _, v := range values {
			if v != "" {
				attrs[key] = v
				return
			}
		}
	}
	set("scan-template", node.ScanTemplate)
	set("site-name", node.SiteName, node.ScanName)
	set("site-importance", node.SiteImportance, node.ScanImportance)
	set("risk-score", node.RiskScore)
	set("device-id", node.DeviceID)
	set("status", node.Status)
	return attrs
}

// toService maps an endpoint onto one service. The service name comes from
// the first detected service; tests of every detected service are merged.
func toService(ep Endpoint, defs *ris.Definitions, address string) (ris.Service, error) {
	port, err := strconv.Atoi(strings.TrimSpace(ep.Port))
	if err != nil || port < 0 || port > 65535 {
		return ris.Service{}, ierrors.MissingField(opParse, "endpoint.port")
	}

	svc := ris.Service{
		Name:     "unknown",
		Protocol: strings.ToLower(ep.Protocol),
		Port:     port,
		Status:   ep.Status,
	}

	for i, s := range ep.Services {
		if i == 0 && s.Name != "" {
			svc.Name = s.Name
		}
		for _, c := range slices.Concat(s.Configuration, s.Configurations) {
			svc.Configs = append(svc.Configs, ris.ServiceConfig{
				Name:  c.Name,
				Value: strings.TrimSpace(c.Value),
			})
		}
		svc.Findings = append(svc.Findings, resolveTests(s.Tests, defs, address)...)
	}

	return svc, nil
}

// resolveTests turns tests into findings through the definition catalog.
// Tests whose id is not in the catalog are not vulnerabilities of this
// report and are ignored.
func resolveTests(tests []Test, defs *ris.Definitions, address string) []ris.Finding {
	var findings []ris.Finding
	for _, t := range tests {
		def, ok := defs.Lookup(t.ID)
		if !ok {
			continue
		}

		f := ris.FromDefinition(def)
		f.PCIStatus = t.PCIStatus
		f.VulnerableSince = t.VulnerableSince
		f.ScanID = t.ScanID
		f.Description += richtext.FlattenAll(t.Body)

		if def.Web {
			f.Web = &ris.WebContext{
				Website: address,
				Path:    keyPath(t.Key),
			}
		}
		findings = append(findings, f)
	}
	return findings
}

// keyPath extracts the resource path from a test key such as
// "/comments.asp||content". Keys that do not start with "/" carry no path.
func keyPath(key string) string {
	if !strings.HasPrefix(key, "/") {
		return ""
	}
	if i := strings.Index(key, "|"); i >= 0 {
		return key[:i]
	}
	return key
}
