// Package target normalizes and validates the domain names handed to the scanner
package target

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

const maxDomainLength = 253

// ErrInvalidDomain is wrapped by every error returned from Parse and ValidateDomain
var ErrInvalidDomain = errors.New("invalid domain")

// domainRegex validates RFC 1035 compliant domain names. The final label is
// either alphabetic or an IDNA A-label.
var domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+([a-z]{2,63}|xn--[a-z0-9-]{1,59})$`)

// inputWildcardRegex matches user input wildcard patterns like *.domain.com or *domain.com
var inputWildcardRegex = regexp.MustCompile(`^\*\.?`)

// Parse normalizes raw user input and validates the result. The returned
// name is lowercase ASCII (punycode for internationalized names).
func Parse(raw string) (string, error) {
	domain := NormalizeDomain(raw)
	if domain == "" {
		return "", fmt.Errorf("%w: domain cannot be empty", ErrInvalidDomain)
	}

	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidDomain, domain, err)
	}

	if err := ValidateDomain(ascii); err != nil {
		return "", err
	}
	return ascii, nil
}

// NormalizeDomain strips the scheme, path, trailing dot and wildcard prefix
// from domain input and lowercases it
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))

	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")

	if idx := strings.IndexAny(domain, "/?#"); idx != -1 {
		domain = domain[:idx]
	}

	domain = strings.TrimSuffix(domain, ".")
	return inputWildcardRegex.ReplaceAllString(domain, "")
}

// ValidateDomain checks if the domain is a valid RFC 1035 compliant domain name
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("%w: domain cannot be empty", ErrInvalidDomain)
	}
	if len(domain) > maxDomainLength {
		return fmt.Errorf("%w: domain name too long (max %d characters)", ErrInvalidDomain, maxDomainLength)
	}
	if !domainRegex.MatchString(domain) {
		return fmt.Errorf("%w: invalid domain format: %s", ErrInvalidDomain, domain)
	}
	return nil
}

// Origin returns the HTTPS origin for a validated domain
func Origin(domain string) string {
	return "https://" + domain
}
