package webfuzzer

import "regexp"

var (
	// bannerPattern matches "Scan of <host>:<port> [<uri>] (<ip>)".
	bannerPattern = regexp.MustCompile(`Scan of ([\w.]+):(\d+) \[([/\w]+)\] \(([\w.]+)\)`)

	// serverHeaderPattern captures the block following "Server header:".
	serverHeaderPattern = regexp.MustCompile(`(?s)Server header:\n\n(.+?)\n\n\n`)

	// requestPattern matches one "(GET): ... ]--" request block.
	requestPattern = regexp.MustCompile(`(?s)\((POST|GET)\): (.*?) \]--`)

	// requestBodyPattern splits a request block into description, URL and
	// response.
	requestBodyPattern = regexp.MustCompile(`(?s)^(.+)\((.+)\)\n--\[ (.+)$`)
)

// Banner is the scan header of a Webfuzzer report.
type Banner struct {
	Hostname string
	Port     string
	URI      string
	Address  string
}

// Request is one reported request block.
type Request struct {
	Method      string
	Description string
	URL         string
	Response    string
}
