package zap

import "encoding/xml"

// Report is the root of an OWASP ZAP XML report.
type Report struct {
	XMLName   xml.Name `xml:"OWASPZAPReport"`
	Version   string   `xml:"version,attr"`
	Generated string   `xml:"generated,attr"`
	Sites     []Site   `xml:"site"`
}

// Site is one scanned site.
type Site struct {
	Name   string      `xml:"name,attr"`
	Host   string      `xml:"host,attr"`
	Port   string      `xml:"port,attr"`
	SSL    string      `xml:"ssl,attr"`
	Alerts []AlertItem `xml:"alerts>alertitem"`
}

// AlertItem is one alert raised on a site. Reports written before ZAP 2.7
// carry the occurrence fields (uri, method, param...) on the alert item
// itself instead of in instances.
type AlertItem struct {
	PluginID   string     `xml:"pluginid"`
	Alert      string     `xml:"alert"`
	Name       string     `xml:"name"`
	RiskCode   string     `xml:"riskcode"`
	Confidence string     `xml:"confidence"`
	RiskDesc   string     `xml:"riskdesc"`
	Desc       string     `xml:"desc"`
	Solution   string     `xml:"solution"`
	OtherInfo  string     `xml:"otherinfo"`
	Reference  string     `xml:"reference"`
	CWEID      string     `xml:"cweid"`
	WASCID     string     `xml:"wascid"`
	SourceID   string     `xml:"sourceid"`
	Instances  []Instance `xml:"instances>instance"`

	Instance
}

// Instance is one occurrence of an alert.
type Instance struct {
	URI      string `xml:"uri"`
	Method   string `xml:"method"`
	Param    string `xml:"param"`
	Attack   string `xml:"attack"`
	Evidence string `xml:"evidence"`
}
