package zap

import (
	"slices"
	"testing"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/shared/severity"
)

const sampleReport = `<?xml version="1.0"?>
<OWASPZAPReport version="2.11.1" generated="Mon, 1 Nov 2021 10:00:00">
  <site name="https://example.com" host="example.com" port="443" ssl="true">
    <alerts>
      <alertitem>
        <pluginid>40012</pluginid>
        <alert>Cross Site Scripting (Reflected)</alert>
        <riskcode>3</riskcode>
        <confidence>2</confidence>
        <desc>&lt;p&gt;Cross-site Scripting is an attack technique.&lt;/p&gt;</desc>
        <instances>
          <instance>
            <uri>https://example.com/search?q=1&amp;page=2</uri>
            <method>GET</method>
            <param>q</param>
            <attack>&lt;script&gt;alert(1)&lt;/script&gt;</attack>
            <evidence>&lt;script&gt;alert(1)&lt;/script&gt;</evidence>
          </instance>
          <instance>
            <uri>https://example.com/comment</uri>
            <method>POST</method>
            <param>body</param>
          </instance>
          <instance>
            <uri>https://example.com/profile</uri>
            <method>GET</method>
          </instance>
        </instances>
        <solution>&lt;p&gt;Encode output.&lt;/p&gt;</solution>
        <reference>&lt;p&gt;https://owasp.org/xss&lt;/p&gt;&lt;p&gt;https://cwe.mitre.org/data/definitions/79.html&lt;/p&gt;</reference>
        <cweid>79</cweid>
        <wascid>8</wascid>
      </alertitem>
      <alertitem>
        <pluginid>10020</pluginid>
        <alert>X-Frame-Options Header Not Set</alert>
        <riskcode>2</riskcode>
        <desc>&lt;p&gt;Missing header.&lt;/p&gt;</desc>
        <uri>https://example.com/</uri>
        <method>GET</method>
        <param>X-Frame-Options</param>
        <solution></solution>
        <reference></reference>
        <cweid>-1</cweid>
        <wascid>0</wascid>
      </alertitem>
      <alertitem>
        <pluginid>1</pluginid>
        <riskcode>1</riskcode>
      </alertitem>
    </alerts>
  </site>
  <site name="http://10.0.0.7:8080" host="10.0.0.7" port="8080" ssl="false">
    <alerts>
      <alertitem>
        <pluginid>90022</pluginid>
        <alert>Application Error Disclosure</alert>
        <riskcode>7</riskcode>
        <instances>
          <instance><uri>http://10.0.0.7:8080/err</uri><method>GET</method></instance>
        </instances>
      </alertitem>
    </alerts>
  </site>
  <site name="bad" host="broken.example" port="none" ssl="false"/>
</OWASPZAPReport>`

func TestParser_Parse(t *testing.T) {
	report, err := NewParser().Parse([]byte(sampleReport))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// Alert without a name and the site with an invalid port.
	if len(report.Skipped) != 2 {
		t.Errorf("len(Skipped) = %d, want 2: %v", len(report.Skipped), report.Skipped)
	}
	if len(report.Hosts) != 2 {
		t.Fatalf("len(Hosts) = %d, want 2", len(report.Hosts))
	}

	host := report.Hosts[0]
	if host.Address != "example.com" || !slices.Equal(host.Hostnames, []string{"example.com"}) {
		t.Errorf("host = %q %v", host.Address, host.Hostnames)
	}
	svc := host.Services[0]
	if svc.Name != "https" || svc.Port != 443 || svc.Protocol != "tcp" || svc.Status != "open" {
		t.Errorf("service = %+v", svc)
	}

	// Three instances plus one legacy alert item without instances.
	if len(svc.Findings) != 4 {
		t.Fatalf("len(Findings) = %d, want 4", len(svc.Findings))
	}

	xss := svc.Findings[0]
	if xss.Severity != severity.High {
		t.Errorf("Severity = %q, want high", xss.Severity)
	}
	if xss.Description != "Cross-site Scripting is an attack technique." {
		t.Errorf("Description = %q", xss.Description)
	}
	if xss.Resolution != "Encode output." {
		t.Errorf("Resolution = %q", xss.Resolution)
	}
	if xss.ExternalID != "ZAP-40012" {
		t.Errorf("ExternalID = %q", xss.ExternalID)
	}
	wantRefs := []string{"CWE:79", "WASC:8", "https://cwe.mitre.org/data/definitions/79.html", "https://owasp.org/xss"}
	if !slices.Equal(xss.References, wantRefs) {
		t.Errorf("References = %v, want %v", xss.References, wantRefs)
	}
	if xss.Web.Website != "https://example.com" || xss.Web.Path != "/search" || xss.Web.Query != "q=1&page=2" {
		t.Errorf("Web = %+v", xss.Web)
	}
	if xss.Web.Params != "q, page" || xss.Web.ParamName != "q" || xss.Web.Method != "GET" {
		t.Errorf("Web = %+v", xss.Web)
	}
	wantData := "URL:\n https://example.com/search?q=1&page=2\n" +
		" Payload:\n q = <script>alert(1)</script>\n" +
		" Evidence:\n <script>alert(1)</script>\n"
	if xss.Data != wantData {
		t.Errorf("Data = %q, want %q", xss.Data, wantData)
	}

	if got := svc.Findings[1].Data; got != "URL:\n https://example.com/comment\n Parameter:\n body\n" {
		t.Errorf("Data = %q", got)
	}
	if got := svc.Findings[2].Data; got != "URL:\n https://example.com/profile\n" {
		t.Errorf("Data = %q", got)
	}

	legacy := svc.Findings[3]
	if legacy.Name != "X-Frame-Options Header Not Set" || legacy.Severity != severity.Medium {
		t.Errorf("legacy finding = %q/%q", legacy.Name, legacy.Severity)
	}
	if len(legacy.References) != 0 {
		t.Errorf("References = %v, want none for cweid -1 / wascid 0", legacy.References)
	}
	if legacy.Web.Path != "/" || legacy.Web.ParamName != "X-Frame-Options" {
		t.Errorf("legacy Web = %+v", legacy.Web)
	}

	ipHost := report.Hosts[1]
	if ipHost.Address != "10.0.0.7" || len(ipHost.Hostnames) != 0 {
		t.Errorf("ip host = %q %v", ipHost.Address, ipHost.Hostnames)
	}
	if ipHost.Services[0].Name != "http" || ipHost.Services[0].Port != 8080 {
		t.Errorf("ip service = %+v", ipHost.Services[0])
	}
	if got := ipHost.Services[0].Findings[0].Severity; got != severity.Info {
		t.Errorf("unmapped risk code severity = %q, want info", got)
	}
}

func TestParser_InstanceCount(t *testing.T) {
	tests := []struct {
		name      string
		instances string
		expected  int
	}{
		{"no instances element", "", 1},
		{"empty instances element", "<instances></instances>", 1},
		{"one instance", "<instances><instance><uri>http://h/a</uri></instance></instances>", 1},
		{"three instances", "<instances><instance><uri>http://h/a</uri></instance><instance><uri>http://h/b</uri></instance><instance><uri>http://h/c</uri></instance></instances>", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := `<OWASPZAPReport><site host="h" port="80" ssl="false"><alerts><alertitem>` +
				`<pluginid>1</pluginid><alert>A</alert><riskcode>0</riskcode><uri>http://h/</uri>` +
				tt.instances + `</alertitem></alerts></site></OWASPZAPReport>`

			report, err := NewParser().Parse([]byte(input))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := len(report.Hosts[0].Services[0].Findings); got != tt.expected {
				t.Errorf("findings = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestParser_ParseMalformed(t *testing.T) {
	for _, input := range []string{"", "{}", "<OWASPZAPReport><site>", `<NexposeReport/>`} {
		report, err := NewParser().Parse([]byte(input))
		if !ierrors.IsMalformed(err) {
			t.Errorf("Parse(%q) error = %v, want malformed", input, err)
		}
		if report != nil {
			t.Errorf("Parse(%q) returned a report", input)
		}
	}
}
