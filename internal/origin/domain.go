package origin

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultDomain is the fallback when a request carries no origin information.
const DefaultDomain = "localhost"

// NormalizeDomain extracts a canonical host[:port] from a raw origin value,
// which may be a full URL, a scheme-prefixed host, or a bare host.
// It never fails: unparseable input degrades to manual scheme stripping.
// Returns "" for empty input, and for the literal "null" a browser sends as
// the Origin of sandboxed or opaque contexts, so callers can apply their own
// fallback.
func NormalizeDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return ""
	}

	// Scheme matching is case-insensitive (HTTP://, Https:// and friends).
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			host := u.Hostname()
			// Port only when explicitly present in the URL.
			if port := u.Port(); port != "" {
				host += ":" + port
			}
			return strings.ToLower(host)
		}
		// Malformed URL: strip the scheme by hand.
		raw = raw[strings.Index(raw, "://")+len("://"):]
	}

	// Bare host, possibly followed by a path or query string.
	if i := strings.IndexAny(raw, "/?"); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(raw)
}

// DomainFromRequest derives the requesting domain for a request, trying the
// Origin header, then the "origin" query parameter, then the Host header,
// and finally DefaultDomain. The Host header is used without its port since
// browsers send the bare serving host there.
func DomainFromRequest(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		if d := NormalizeDomain(o); d != "" {
			return d
		}
	}
	if o := r.URL.Query().Get("origin"); o != "" {
		if d := NormalizeDomain(o); d != "" {
			return d
		}
	}
	if h := r.Host; h != "" {
		host := h
		if i := strings.Index(host, ":"); i >= 0 {
			host = host[:i]
		}
		if d := NormalizeDomain(host); d != "" {
			return d
		}
	}
	return DefaultDomain
}

// DomainFromCandidates normalizes the first non-empty candidate, falling
// back to DefaultDomain when every candidate is empty.
func DomainFromCandidates(candidates []string) string {
	for _, c := range candidates {
		if d := NormalizeDomain(c); d != "" {
			return d
		}
	}
	return DefaultDomain
}

// domainVariants returns the stored-column values that count as a match for
// a canonical domain. Historical rows recorded the domain with or without a
// scheme prefix, so all three spellings must resolve to the same origin.
func domainVariants(domain string) []string {
	return []string{domain, "http://" + domain, "https://" + domain}
}
