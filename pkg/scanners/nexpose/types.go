package nexpose

import (
	"encoding/xml"

	"github.com/exploopio/scanimport/pkg/richtext"
)

// Report is the root of a Nexpose XML 2.0 ("full") report.
type Report struct {
	XMLName     xml.Name        `xml:"NexposeReport"`
	Version     string          `xml:"version,attr"`
	Scans       []Scan          `xml:"scans>scan"`
	Nodes       []Node          `xml:"nodes>node"`
	Definitions []Vulnerability `xml:"VulnerabilityDefinitions>vulnerability"`
}

// Scan is a scan summary entry.
type Scan struct {
	ID        string `xml:"id,attr"`
	Name      string `xml:"name,attr"`
	StartTime string `xml:"startTime,attr"`
	EndTime   string `xml:"endTime,attr"`
	Status    string `xml:"status,attr"`
}

// Node is one scanned device.
type Node struct {
	Address         string `xml:"address,attr"`
	Status          string `xml:"status,attr"`
	DeviceID        string `xml:"device-id,attr"`
	HardwareAddress string `xml:"hardware-address,attr"`
	SiteName        string `xml:"site-name,attr"`
	SiteImportance  string `xml:"site-importance,attr"`
	ScanName        string `xml:"scan-name,attr"`
	ScanImportance  string `xml:"scan-importance,attr"`
	ScanTemplate    string `xml:"scan-template,attr"`
	RiskScore       string `xml:"risk-score,attr"`

	Names        []string        `xml:"names>name"`
	OS           []OSFingerprint `xml:"fingerprints>os"`
	Fingerprints []Fingerprint   `xml:"fingerprints>fingerprint"`
	Software     []Fingerprint   `xml:"software>fingerprint"`
	Tests        []Test          `xml:"tests>test"`
	Endpoints    []Endpoint      `xml:"endpoints>endpoint"`
}

// OSFingerprint is an operating system guess of a node.
type OSFingerprint struct {
	Certainty   string `xml:"certainty,attr"`
	DeviceClass string `xml:"device-class,attr"`
	Vendor      string `xml:"vendor,attr"`
	Family      string `xml:"family,attr"`
	Product     string `xml:"product,attr"`
	Version     string `xml:"version,attr"`
	Arch        string `xml:"arch,attr"`
}

// Fingerprint is a generic or software fingerprint.
type Fingerprint struct {
	Certainty     string `xml:"certainty,attr"`
	Description   string `xml:"description,attr"`
	Vendor        string `xml:"vendor,attr"`
	Family        string `xml:"family,attr"`
	Product       string `xml:"product,attr"`
	Version       string `xml:"version,attr"`
	SoftwareClass string `xml:"software-class,attr"`
}

// Test is one vulnerability check result. Its body is rich text.
type Test struct {
	ID              string          `xml:"id,attr"`
	Key             string          `xml:"key,attr"`
	Status          string          `xml:"status,attr"`
	ScanID          string          `xml:"scan-id,attr"`
	VulnerableSince string          `xml:"vulnerable-since,attr"`
	PCIStatus       string          `xml:"pci-compliance-status,attr"`
	Body            []richtext.Node `xml:",any"`
}

// Endpoint is a protocol/port pair on a node.
type Endpoint struct {
	Protocol string    `xml:"protocol,attr"`
	Port     string    `xml:"port,attr"`
	Status   string    `xml:"status,attr"`
	Services []Service `xml:"services>service"`
}

// Service is a service detected on an endpoint.
type Service struct {
	Name string `xml:"name,attr"`

	// Nexpose writes "configuration"; older exports use "configurations".
	Configuration  []Config `xml:"configuration>config"`
	Configurations []Config `xml:"configurations>config"`

	Tests []Test `xml:"tests>test"`
}

// Config is a service configuration entry.
type Config struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// Vulnerability is a catalog entry of VulnerabilityDefinitions.
type Vulnerability struct {
	ID         string `xml:"id,attr"`
	Title      string `xml:"title,attr"`
	Severity   string `xml:"severity,attr"`
	CVSSScore  string `xml:"cvssScore,attr"`
	CVSSVector string `xml:"cvssVector,attr"`
	RiskScore  string `xml:"riskScore,attr"`

	Malware     []string    `xml:"malware>name"`
	Exploits    []Exploit   `xml:"exploits>exploit"`
	Description Markup      `xml:"description"`
	References  []Reference `xml:"references>reference"`
	Tags        []string    `xml:"tags>tag"`
	Solution    Markup      `xml:"solution"`
}

// Exploit describes a known exploit.
type Exploit struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
	Link  string `xml:"link,attr"`

	// skillLevel is current; sklLevel appears in older exports.
	SkillLevel       string `xml:"skillLevel,attr"`
	LegacySkillLevel string `xml:"sklLevel,attr"`
}

// Reference is an external reference.
type Reference struct {
	Source string `xml:"source,attr"`
	Value  string `xml:",chardata"`
}

// Markup holds the rich-text children of an element.
type Markup struct {
	Nodes []richtext.Node `xml:",any"`
}
