package whatweb

import "encoding/json"

// Entry is one target of a WhatWeb --log-json array.
type Entry struct {
	Target     string                     `json:"target"`
	HTTPStatus int                        `json:"http_status"`
	Plugins    map[string]json.RawMessage `json:"plugins"`
}

// PluginResult is the result of one WhatWeb plugin. Every field is a list.
type PluginResult struct {
	String  []string `json:"string,omitempty"`
	OS      []string `json:"os,omitempty"`
	Version []string `json:"version,omitempty"`
	Module  []string `json:"module,omitempty"`
}

// Plugin names read by the parser.
const (
	PluginHTTPServer = "HTTPServer"
	PluginIP         = "IP"
	PluginCountry    = "Country"
)
