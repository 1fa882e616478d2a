// Package whois provides WHOIS lookup functionality
package whois

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"

	"github.com/commjoen/domainposture/pkg/models"
)

const (
	defaultTimeout = 10 * time.Second
	cacheTTL       = 24 * time.Hour
)

// Client provides WHOIS lookup functionality with caching
type Client struct {
	timeout time.Duration
	query   func(domain string) (string, error)
	cache   map[string]*cachedResult
	mu      sync.RWMutex
	ttl     time.Duration
}

type cachedResult struct {
	result    *models.WHOISReport
	timestamp time.Time
}

// NewClient creates a new WHOIS client with the specified timeout
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	wc := whois.NewClient().SetTimeout(timeout)
	return &Client{
		timeout: timeout,
		query: func(domain string) (string, error) {
			return wc.Whois(domain)
		},
		cache: make(map[string]*cachedResult),
		ttl:   cacheTTL,
	}
}

// Lookup performs a WHOIS lookup for the registrable domain of host
func (c *Client) Lookup(ctx context.Context, host string) *models.WHOISReport {
	domain := extractBaseDomain(host)
	if domain == "" {
		return &models.WHOISReport{Error: "invalid domain"}
	}

	if result := c.getFromCache(domain); result != nil {
		return result
	}

	result := c.performLookup(ctx, domain)

	// Failed lookups are not cached so a later run can retry
	if result.Error == "" {
		c.saveToCache(domain, result)
	}

	return result
}

// performLookup executes the actual WHOIS query
func (c *Client) performLookup(ctx context.Context, domain string) *models.WHOISReport {
	result := &models.WHOISReport{Domain: domain}

	type lookupResult struct {
		raw string
		err error
	}
	done := make(chan lookupResult, 1)

	go func() {
		raw, err := c.query(domain)
		done <- lookupResult{raw: raw, err: err}
	}()

	var lr lookupResult
	select {
	case <-ctx.Done():
		result.Error = "WHOIS lookup cancelled"
		return result
	case <-time.After(c.timeout):
		result.Error = "WHOIS lookup timeout"
		return result
	case lr = <-done:
	}

	if lr.err != nil {
		result.Error = categorizeError(lr.err)
		return result
	}

	parsed, err := whoisparser.Parse(lr.raw)
	if err != nil {
		result.Error = fmt.Sprintf("parse error: %v", err)
		return result
	}

	if parsed.Domain != nil {
		result.Nameservers = parsed.Domain.NameServers
		result.Status = parsed.Domain.Status
		if parsed.Domain.DNSSec {
			result.DNSSEC = "signed"
		} else {
			result.DNSSEC = "unsigned"
		}

		result.CreationDate = parseOptionalDate(parsed.Domain.CreatedDate)
		result.ExpirationDate = parseOptionalDate(parsed.Domain.ExpirationDate)
		result.UpdatedDate = parseOptionalDate(parsed.Domain.UpdatedDate)
	}

	if parsed.Registrar != nil {
		result.Registrar = parsed.Registrar.Name
	}

	if parsed.Registrant != nil {
		result.RegistrantName = parsed.Registrant.Name
		result.RegistrantOrg = parsed.Registrant.Organization
	}

	return result
}

// getFromCache retrieves a cached result if valid
func (c *Client) getFromCache(domain string) *models.WHOISReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.cache[domain]
	if !ok || time.Since(cached.timestamp) > c.ttl {
		return nil
	}
	return cached.result
}

// saveToCache stores a result in the cache
func (c *Client) saveToCache(domain string, result *models.WHOISReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[domain] = &cachedResult{
		result:    result,
		timestamp: time.Now(),
	}
}

// ClearCache removes all cached entries
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]*cachedResult)
}

// extractBaseDomain returns the registrable domain of host using the public
// suffix list, e.g. "www.example.co.uk" -> "example.co.uk"
func extractBaseDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}

	base, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return base
}

func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil
	}
	return &t
}

// parseDate attempts to parse a date string in various formats
func parseDate(dateStr string) (time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)

	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02-Jan-2006",
		"January 02, 2006",
		"2006/01/02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}

// categorizeError converts WHOIS errors to user-friendly messages
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "timeout"):
		return "WHOIS server timeout"
	case strings.Contains(errStr, "connection refused"):
		return "WHOIS server connection refused"
	case strings.Contains(errStr, "no whois server"):
		return "no WHOIS server found for this TLD"
	case strings.Contains(errStr, "rate limit"):
		return "rate limited by WHOIS server"
	default:
		return errStr
	}
}
