package transport

import (
	"strconv"
	"strings"
)

const (
	schemeSeparator = "://"
	schemeHTTPS     = "https"
	schemeHTTP      = "http"

	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
)

// Endpoint is a decomposed controller address.
type Endpoint struct {
	Host   string
	Port   int
	Path   string
	Secure bool
}

// ResolveURL splits raw into host, port, path and scheme. The host runs from
// the scheme separator up to the first ':' or '/'; an explicit port overrides
// the scheme default and a missing path means "/". A string without a scheme
// separator is treated as a bare host on the insecure default port.
func ResolveURL(raw string) Endpoint {
	ep := Endpoint{Port: DefaultHTTPPort, Path: "/"}

	scheme, rest, found := strings.Cut(raw, schemeSeparator)
	if !found {
		ep.Host = raw
		return ep
	}
	if strings.EqualFold(scheme, schemeHTTPS) {
		ep.Secure = true
		ep.Port = DefaultHTTPSPort
	}

	authority := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority = rest[:i]
		ep.Path = rest[i:]
	}
	host, port, hasPort := strings.Cut(authority, ":")
	ep.Host = host
	if hasPort {
		// a malformed port behaves like the C atoi family: leading digits or 0
		ep.Port = leadingInt(port)
	}
	return ep
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// Scheme returns "https" for secure endpoints and "http" otherwise.
func (e Endpoint) Scheme() string {
	if e.Secure {
		return schemeHTTPS
	}
	return schemeHTTP
}

// Origin renders scheme://host:port.
func (e Endpoint) Origin() string {
	return e.Scheme() + schemeSeparator + e.Host + ":" + strconv.Itoa(e.Port)
}

// URL renders the endpoint with its path.
func (e Endpoint) URL() string {
	return e.Origin() + e.Path
}

// Join appends an API path to the endpoint, keeping any base path prefix.
func (e Endpoint) Join(path string) string {
	base := strings.TrimRight(e.Path, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return e.Origin() + base + path
}

// IsAbsolute reports whether target carries its own scheme.
func IsAbsolute(target string) bool {
	return strings.Contains(target, schemeSeparator)
}
