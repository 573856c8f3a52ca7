package scope

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Resolve resolves a possibly relative href against base.
// The fragment is dropped and an empty path becomes "/", so that
// "http://example.com", "http://example.com/" and "http://example.com/#top"
// all resolve to the same URL.
func Resolve(base *url.URL, href string) (*url.URL, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: nil base", ErrMalformedURL)
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	resolved := base.ResolveReference(ref)
	canonicalize(resolved)
	return resolved, nil
}

// IsInScope reports whether u belongs to the session rooted at rootScope.
// The comparison is an exact match on the host component (including any
// port). Nil URLs and an empty root scope are never in scope.
func IsInScope(u *url.URL, rootScope string) bool {
	if u == nil || rootScope == "" {
		return false
	}
	return u.Host == rootScope
}

// RootScope returns the host of the seed URL.
func RootScope(seed string) (string, error) {
	u, err := url.Parse(seed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if u.Host == "" {
		return "", ErrInvalidSeed
	}
	return u.Host, nil
}

// NormalizeSeed turns user input into an absolute seed URL.
//
// Input that already carries an http or https scheme is only canonicalized.
// Otherwise "http://" is prepended, and when the input names an apex
// registered domain (for example "example.com", but not "blog.example.com",
// "localhost" or an IP address) a "www." prefix is added as well.
func NormalizeSeed(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptySeed
	}

	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(raw, "://") {
			return "", ErrInvalidSeed
		}
		if !strings.HasPrefix(lower, "www.") && isApexDomain(raw) {
			raw = "www." + raw
		}
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", ErrInvalidSeed
	}

	canonicalize(u)
	return u.String(), nil
}

// isApexDomain reports whether the host part of a scheme-less input is a
// registered domain with no subdomain labels.
func isApexDomain(input string) bool {
	u, err := url.Parse("http://" + input)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	registered, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	return registered == host
}

func canonicalize(u *url.URL) {
	u.Fragment = ""
	u.RawFragment = ""
	if u.Host != "" && u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
}
