// Package whatweb decodes WhatWeb JSON logs.
package whatweb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/weburl"
)

const (
	opParse = "whatweb.Parse"

	// Defaults for absent plugin results.
	DefaultAddress = "0.0.0.0"
	DefaultOS      = "Unknown"
	DefaultBanner  = "Unknown"
)

// Parser converts WhatWeb JSON logs to the intermediate record set.
type Parser struct{}

// NewParser creates a new WhatWeb parser.
func NewParser() *Parser {
	return &Parser{}
}

// Format returns the format handled by this parser.
func (p *Parser) Format() ris.Format {
	return ris.FormatWhatWeb
}

// Parse decodes a WhatWeb JSON array. Each target becomes one host; plugin
// results that are absent fall back to the package defaults.
func (p *Parser) Parse(data []byte) (*ris.Report, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, ierrors.Malformed(opParse, "invalid WhatWeb JSON array", err)
	}

	report := ris.NewReport(ris.FormatWhatWeb)
	for i, entry := range entries {
		// WhatWeb terminates its log with an empty object.
		if entry.Target == "" && len(entry.Plugins) == 0 {
			continue
		}

		host, err := toHost(entry)
		if err != nil {
			report.Skip(ierrors.E(ierrors.KindMissingField, opParse, fmt.Sprintf("entry %d", i), err))
			continue
		}
		report.Hosts = append(report.Hosts, host)
	}
	return report, nil
}

func toHost(entry Entry) (ris.Host, error) {
	if strings.TrimSpace(entry.Target) == "" {
		return ris.Host{}, ierrors.MissingField(opParse, "target")
	}

	server, err := plugin(entry, PluginHTTPServer)
	if err != nil {
		return ris.Host{}, err
	}
	ip, err := plugin(entry, PluginIP)
	if err != nil {
		return ris.Host{}, err
	}
	country, err := plugin(entry, PluginCountry)
	if err != nil {
		return ris.Host{}, err
	}

	address := DefaultAddress
	if len(ip.String) > 0 && ip.String[0] != "" {
		address = ip.String[0]
	}
	os := DefaultOS
	if len(server.OS) > 0 && server.OS[0] != "" {
		os = server.OS[0]
	}
	banner, version := DefaultBanner, ""
	if len(server.String) > 0 {
		banner = strings.Join(server.String, ", ")
		version = banner
	}

	host := ris.Host{
		Address:     address,
		OS:          []ris.OSFingerprint{{Product: os}},
		Description: banner + " - " + strings.Join(country.String, ", "),
		Attributes: map[string]string{
			"target":      entry.Target,
			"http_status": strconv.Itoa(entry.HTTPStatus),
		},
	}

	if loc, err := weburl.Parse(entry.Target); err == nil && loc.Hostname != "" {
		host.Hostnames = []string{loc.Hostname}

		name := loc.Scheme
		if name == "" {
			name = "http"
		}
		host.Services = []ris.Service{{
			Name:     name,
			Protocol: "tcp",
			Port:     loc.DefaultPort(),
			Status:   "open",
			Version:  version,
		}}
	}

	return host, nil
}

// plugin decodes the named plugin result. An absent plugin yields an empty
// result.
func plugin(entry Entry, name string) (PluginResult, error) {
	var res PluginResult
	raw, ok := entry.Plugins[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return res, nil
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return PluginResult{}, fmt.Errorf("plugin %s: %w", name, err)
	}
	return res, nil
}
