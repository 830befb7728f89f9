// Package weburl decomposes the target URLs of web findings.
package weburl

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// paramPattern finds parameter names in a URL ("id" in "?id=1").
var paramPattern = regexp.MustCompile(`(\w+)=`)

// Location is a decomposed URL.
type Location struct {
	Scheme   string
	Hostname string
	Port     int // explicit port, or 0
	Website  string
	Path     string
	Query    string
	Params   string
}

// Parse decomposes raw. Website is scheme://host[:port] as written in raw,
// Params lists parameter names found anywhere in raw.
func Parse(raw string) (Location, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Location{}, err
	}

	loc := Location{
		Scheme:   strings.ToLower(u.Scheme),
		Hostname: u.Hostname(),
		Path:     u.Path,
		Query:    u.RawQuery,
		Params:   ParamNames(raw),
	}
	loc.Port, _ = strconv.Atoi(u.Port())
	if u.Host != "" {
		loc.Website = loc.Scheme + "://" + u.Host
	}
	return loc, nil
}

// DefaultPort returns the explicit port, or the default port of the scheme
// (443 for https, 80 otherwise).
func (l Location) DefaultPort() int {
	if l.Port != 0 {
		return l.Port
	}
	if l.Scheme == "https" {
		return 443
	}
	return 80
}

// ParamNames returns the names of every key=value pair in s, in order,
// joined with ", ".
func ParamNames(s string) string {
	matches := paramPattern.FindAllStringSubmatch(s, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return strings.Join(names, ", ")
}
