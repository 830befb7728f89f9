package nexpose

import (
	"slices"
	"strings"
	"testing"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/shared/severity"
)

const sampleReport = `<?xml version="1.0" encoding="UTF-8"?>
<NexposeReport version="2.0">
  <scans>
    <scan id="7" name="weekly" startTime="20240101T000000" endTime="20240101T010000" status="finished"/>
  </scans>
  <nodes>
    <node address="192.168.1.10" status="alive" device-id="12" site-name="HQ" site-importance="High" scan-template="full-audit" risk-score="1520.5" hardware-address="00-50-56-AB-CD-EF">
      <names>
        <name>web01.example.com</name>
        <name>web01</name>
      </names>
      <fingerprints>
        <os certainty="0.90" device-class="General" vendor="Ubuntu" family="Linux" product="Linux" version="20.04" arch="x86_64"/>
      </fingerprints>
      <software>
        <fingerprint certainty="1.00" vendor="OpenBSD" family="OpenSSH" product="OpenSSH" version="8.2" software-class="Remote Access"/>
      </software>
      <tests>
        <test id="SSH-WEAK-KEX" key="" status="vulnerable-version" scan-id="7" vulnerable-since="20231201T120000" pci-compliance-status="fail">
          <Paragraph>Host test body.</Paragraph>
        </test>
        <test id="not-in-catalog" status="not-vulnerable"/>
      </tests>
      <endpoints>
        <endpoint protocol="tcp" port="80" status="open">
          <services>
            <service name="HTTP">
              <configuration>
                <config name="http.banner">Apache/2.4.41 (Ubuntu)</config>
                <config name="http.banner.server">Apache/2.4.41</config>
              </configuration>
              <tests>
                <test id="http-apache-0001" key="/index.php||q" status="vulnerable-exploited" scan-id="7" vulnerable-since="20231201T120000" pci-compliance-status="fail">
                  <Paragraph><Paragraph>Vulnerable URL:</Paragraph><URLLink LinkURL="http://192.168.1.10/index.php" LinkTitle="http://192.168.1.10/index.php"/></Paragraph>
                </test>
              </tests>
            </service>
          </services>
        </endpoint>
        <endpoint protocol="tcp" port="http" status="open"/>
      </endpoints>
    </node>
    <node status="alive"/>
  </nodes>
  <VulnerabilityDefinitions>
    <vulnerability id="HTTP-Apache-0001" title="Apache HTTPD: request smuggling" severity="9" cvssScore="9.8" cvssVector="(AV:N/AC:L/Au:N/C:C/I:C/A:C)" riskScore="892.5">
      <malware><name>Mirai</name></malware>
      <exploits>
        <exploit id="1" title="Apache smuggle" link="http://exploit-db.com/1" type="exploitdb" skillLevel="Expert"/>
        <exploit id="2" title="Legacy" link="http://msf/2" type="metasploit" sklLevel="Novice"/>
        <exploit id="3" title="Incomplete" type="metasploit"/>
      </exploits>
      <description>
        <ContainerBlockElement>
          <Paragraph>Request smuggling in mod_proxy.</Paragraph>
        </ContainerBlockElement>
      </description>
      <references>
        <reference source="CVE">CVE-2023-25690</reference>
        <reference source="URL">http://httpd.apache.org/security/</reference>
        <reference source="URL">  </reference>
      </references>
      <tags><tag>Apache</tag><tag>Web</tag></tags>
      <solution>
        <ContainerBlockElement>
          <UnorderedList>
            <ListItem>Upgrade to 2.4.56</ListItem>
            <ListItem>Disable mod_proxy</ListItem>
          </UnorderedList>
        </ContainerBlockElement>
      </solution>
    </vulnerability>
    <vulnerability id="ssh-weak-kex" title="Weak SSH key exchange" severity="4" cvssVector="(AV:N/AC:H)">
      <description><Paragraph>Weak KEX. </Paragraph></description>
    </vulnerability>
    <vulnerability id="bad-score" title="Out of range" severity="12"/>
  </VulnerabilityDefinitions>
</NexposeReport>`

func TestParser_Parse(t *testing.T) {
	p := NewParser()
	report, err := p.Parse([]byte(sampleReport))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if report.Format != p.Format() {
		t.Errorf("Format = %q, want %q", report.Format, p.Format())
	}
	if len(report.Hosts) != 1 {
		t.Fatalf("len(Hosts) = %d, want 1", len(report.Hosts))
	}

	// bad-score definition, node without address, endpoint with port "http"
	if len(report.Skipped) != 3 {
		t.Errorf("len(Skipped) = %d, want 3: %v", len(report.Skipped), report.Skipped)
	}
	var kinds []ierrors.Kind
	for _, err := range report.Skipped {
		kinds = append(kinds, ierrors.GetKind(err))
	}
	if !slices.Contains(kinds, ierrors.KindInvalidSeverityScore) || !slices.Contains(kinds, ierrors.KindMissingField) {
		t.Errorf("Skipped kinds = %v", kinds)
	}

	host := report.Hosts[0]
	if host.Address != "192.168.1.10" {
		t.Errorf("Address = %q", host.Address)
	}
	if host.HardwareAddress != "00-50-56-AB-CD-EF" {
		t.Errorf("HardwareAddress = %q", host.HardwareAddress)
	}
	if !host.WithInterface {
		t.Error("WithInterface = false, want true")
	}
	if !slices.Equal(host.Hostnames, []string{"web01.example.com", "web01"}) {
		t.Errorf("Hostnames = %v", host.Hostnames)
	}
	if len(host.OS) != 1 || host.OS[0].Vendor != "Ubuntu" || host.OS[0].Arch != "x86_64" || host.OS[0].DeviceClass != "General" {
		t.Errorf("OS = %+v", host.OS)
	}
	if len(host.Software) != 1 || host.Software[0].Product != "OpenSSH" || host.Software[0].SoftwareClass != "Remote Access" {
		t.Errorf("Software = %+v", host.Software)
	}
	if host.Attributes["site-name"] != "HQ" || host.Attributes["scan-template"] != "full-audit" || host.Attributes["risk-score"] != "1520.5" {
		t.Errorf("Attributes = %v", host.Attributes)
	}

	if len(host.Findings) != 1 {
		t.Fatalf("len(host.Findings) = %d, want 1", len(host.Findings))
	}
	hf := host.Findings[0]
	if hf.Name != "Weak SSH key exchange" || hf.Severity != severity.Medium {
		t.Errorf("host finding = %q/%q", hf.Name, hf.Severity)
	}
	if hf.Description != "Weak KEX.Host test body." {
		t.Errorf("host finding description = %q", hf.Description)
	}
	if hf.PCIStatus != "fail" || hf.ScanID != "7" || hf.VulnerableSince != "20231201T120000" {
		t.Errorf("occurrence data = %q/%q/%q", hf.PCIStatus, hf.ScanID, hf.VulnerableSince)
	}
	if hf.Web != nil {
		t.Error("non http- finding should not carry a web context")
	}

	if len(host.Services) != 1 {
		t.Fatalf("len(Services) = %d, want 1", len(host.Services))
	}
	svc := host.Services[0]
	if svc.Name != "HTTP" || svc.Protocol != "tcp" || svc.Port != 80 || svc.Status != "open" {
		t.Errorf("service = %+v", svc)
	}
	if len(svc.Configs) != 2 || svc.Configs[0].Value != "Apache/2.4.41 (Ubuntu)" {
		t.Errorf("Configs = %+v", svc.Configs)
	}
	if len(svc.Findings) != 1 {
		t.Fatalf("len(svc.Findings) = %d, want 1", len(svc.Findings))
	}

	sf := svc.Findings[0]
	if sf.Severity != severity.Critical {
		t.Errorf("Severity = %q, want critical", sf.Severity)
	}
	if sf.RiskScore != "892.5" {
		t.Errorf("RiskScore = %q", sf.RiskScore)
	}
	if sf.Web == nil || sf.Web.Path != "/index.php" {
		t.Errorf("Web = %+v, want path /index.php", sf.Web)
	}
	if !strings.HasPrefix(sf.Description, "Request smuggling in mod_proxy.") {
		t.Errorf("Description = %q", sf.Description)
	}
	if !strings.HasSuffix(sf.Description, "Vulnerable URL:http://192.168.1.10/index.php ") {
		t.Errorf("Description does not end with test body: %q", sf.Description)
	}
	if sf.Resolution != "\t* Upgrade to 2.4.56\n\t* Disable mod_proxy\n" {
		t.Errorf("Resolution = %q", sf.Resolution)
	}
	if !slices.Equal(sf.Tags, []string{"apache", "web"}) {
		t.Errorf("Tags = %v", sf.Tags)
	}

	wantRefs := []string{
		"Apache smuggle http://exploit-db.com/1 exploitdb Expert",
		"CVE-2023-25690",
		"Legacy http://msf/2 metasploit Novice",
		"Mirai",
		"http-apache-0001",
		"http://httpd.apache.org/security/",
		"vector: (AV:N/AC:L/Au:N/C:C/I:C/A:C)",
	}
	if !slices.Equal(sf.References, wantRefs) {
		t.Errorf("References = %q\nwant %q", sf.References, wantRefs)
	}
}

func TestParser_ParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not xml", "nexpose"},
		{"unterminated", "<NexposeReport><nodes>"},
		{"wrong root", `<OWASPZAPReport version="2.7"/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := NewParser().Parse([]byte(tt.input))
			if err == nil {
				t.Fatal("Parse() error = nil, want malformed")
			}
			if !ierrors.IsMalformed(err) {
				t.Errorf("Parse() error kind = %v, want malformed", ierrors.GetKind(err))
			}
			if report != nil {
				t.Errorf("Parse() report = %+v, want nil", report)
			}
		})
	}
}

func TestParser_LookupIsCaseInsensitive(t *testing.T) {
	input := `<NexposeReport version="2.0">
  <nodes><node address="10.0.0.1"><tests><test id="CVE-2020-0001"/></tests></node></nodes>
  <VulnerabilityDefinitions><vulnerability id="cve-2020-0001" title="X" severity="0"/></VulnerabilityDefinitions>
</NexposeReport>`

	report, err := NewParser().Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(report.Hosts) != 1 || len(report.Hosts[0].Findings) != 1 {
		t.Fatalf("expected one host finding, got %+v", report.Hosts)
	}
	if got := report.Hosts[0].Findings[0].Severity; got != severity.Info {
		t.Errorf("Severity = %q, want info", got)
	}
}

func TestParser_DefinitionErrors(t *testing.T) {
	tests := []struct {
		name string
		def  string
		kind ierrors.Kind
	}{
		{"missing severity", `<vulnerability id="x-1" title="X"/>`, ierrors.KindMissingField},
		{"blank severity", `<vulnerability id="x-1" title="X" severity=" "/>`, ierrors.KindMissingField},
		{"out of range", `<vulnerability id="x-1" title="X" severity="11"/>`, ierrors.KindInvalidSeverityScore},
		{"not a number", `<vulnerability id="x-1" title="X" severity="high"/>`, ierrors.KindInvalidSeverityScore},
		{"missing title", `<vulnerability id="x-1" severity="3"/>`, ierrors.KindMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := `<NexposeReport version="2.0"><nodes/><VulnerabilityDefinitions>` + tt.def + `</VulnerabilityDefinitions></NexposeReport>`
			report, err := NewParser().Parse([]byte(input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(report.Skipped) != 1 {
				t.Fatalf("len(Skipped) = %d, want 1", len(report.Skipped))
			}
			if got := ierrors.GetKind(report.Skipped[0]); got != tt.kind {
				t.Errorf("Skipped[0] kind = %v, want %v", got, tt.kind)
			}
		})
	}
}

func TestKeyPath(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"/comments.asp||content", "/comments.asp"},
		{"/admin", "/admin"},
		{"", ""},
		{"ssh-rsa", ""},
	}

	for _, tt := range tests {
		if got := keyPath(tt.key); got != tt.expected {
			t.Errorf("keyPath(%q) = %q, want %q", tt.key, got, tt.expected)
		}
	}
}
