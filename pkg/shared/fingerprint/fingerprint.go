// Package fingerprint derives natural keys and stable references for the
// entities handed to an inventory.
//
// IMPORTANT: inventory adapters use these keys to merge repeated creation
// calls. Any change to a key format changes identity of stored entities and
// must be coordinated with existing data.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Entity is the kind of inventory entity a key identifies.
type Entity string

const (
	EntityAsset     Entity = "asset"
	EntityInterface Entity = "interface"
	EntityService   Entity = "service"
	EntityFinding   Entity = "finding"
)

// namespace seeds the name-based UUIDs returned by Ref.
var namespace = uuid.MustParse("6f1c3b1e-8a52-4f7e-9d0b-3c2f5e7a9b41")

// AssetKey is the natural key of an asset: its address.
func AssetKey(address string) string {
	return normalize(address)
}

// InterfaceKey identifies an interface within an asset.
func InterfaceKey(assetKey, hardwareAddress string) string {
	return fmt.Sprintf("%s|%s", assetKey, normalize(hardwareAddress))
}

// ServiceKey identifies a service by protocol and port within an asset.
func ServiceKey(assetKey, protocol string, port int) string {
	return fmt.Sprintf("%s|%s|%d", assetKey, normalize(protocol), port)
}

// FindingInput contains the data that identifies one finding occurrence.
type FindingInput struct {
	AssetKey   string
	ServiceKey string // empty for host-level findings
	Name       string

	// Web-context fields (Nexpose http-*, Nuclei, ZAP, Webfuzzer)
	Website   string
	Method    string
	Path      string
	Parameter string
}

// FindingKey identifies a finding on its asset or service. Web findings are
// further keyed by host, method, path and parameter name (not value) so that
// ?id=1 and ?id=2 collapse into one occurrence.
func FindingKey(in FindingInput) string {
	owner := in.AssetKey
	if in.ServiceKey != "" {
		owner = in.ServiceKey
	}
	if in.Website == "" && in.Path == "" && in.Method == "" && in.Parameter == "" {
		return fmt.Sprintf("%s|%s", owner, normalize(in.Name))
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		owner,
		normalize(in.Name),
		normalizeHost(in.Website),
		strings.ToUpper(strings.TrimSpace(in.Method)),
		normalizePath(in.Path),
		normalize(in.Parameter),
	)
}

// Ref returns the stable reference for a natural key: a name-based UUID, so
// the same key always yields the same reference across runs and adapters.
func Ref(entity Entity, key string) string {
	return uuid.NewSHA1(namespace, []byte(string(entity)+":"+key)).String()
}

// Hash computes SHA256 hash of the input string.
// Returns 64 hex characters.
func Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// normalize cleans up a string for consistent keys.
// - Trims whitespace
// - Converts to lowercase for case-insensitive matching
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeHost cleans up a website for web finding keys.
// - Removes protocol prefix (http://, https://)
// - Removes port if it's default (80, 443)
// - Converts to lowercase
func normalizeHost(host string) string {
	host = normalize(host)

	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	host = strings.TrimSuffix(host, ":443")
	host = strings.TrimSuffix(host, ":80")

	return host
}

// normalizePath cleans up a URL path for web finding keys.
// - Removes query string and fragment
// - Normalizes leading/trailing slashes
func normalizePath(path string) string {
	path = normalize(path)

	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	if idx := strings.Index(path, "#"); idx != -1 {
		path = path[:idx]
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	return path
}
