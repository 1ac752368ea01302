package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned for strings that are not absolute URLs
var ErrInvalidURL = errors.New("invalid URL")

// IsValidURL reports whether raw parses as an absolute URL with both a
// scheme and a host
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// ExtractDomain returns the host (and port, if any) of a valid URL
func ExtractDomain(raw string) (string, error) {
	if !IsValidURL(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	u, _ := url.Parse(raw)
	return u.Host, nil
}

// Resolve resolves href against base. Returns false for hrefs that do not parse
func Resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// DomainScope decides which URLs belong to the crawl target
type DomainScope struct {
	domain string
	strict bool
}

// NewDomainScope builds a scope for domain. In the default (loose) mode any
// URL containing domain as a substring is in scope, so evil-example.test.com
// matches example.test. Strict mode requires the host to equal domain or be
// a subdomain of it
func NewDomainScope(domain string, strict bool) DomainScope {
	return DomainScope{
		domain: domain,
		strict: strict,
	}
}

// Domain returns the target domain
func (s DomainScope) Domain() string {
	return s.domain
}

// Contains reports whether rawURL is in scope
func (s DomainScope) Contains(rawURL string) bool {
	if s.domain == "" {
		return false
	}
	if !s.strict {
		return strings.Contains(rawURL, s.domain)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	domain := strings.ToLower(s.domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
