// Package dns resolves DNS records for a domain, one independent query per record type
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/commjoen/domainposture/pkg/models"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// DefaultRecordTypes are resolved when no record types are configured
var DefaultRecordTypes = []string{"A", "MX"}

var (
	// ErrNXDomain is returned when the queried name does not exist
	ErrNXDomain = errors.New("domain not found (NXDOMAIN)")
	// ErrNoAnswer is returned when the name exists but has no records of the requested type
	ErrNoAnswer = errors.New("no answer")
	// ErrUnsupportedType is returned for record types the client cannot render
	ErrUnsupportedType = errors.New("unsupported record type")
)

// recordType describes how to query and render one record type
type recordType struct {
	qtype  uint16
	render func(dns.RR) (string, bool)
}

var supportedTypes = map[string]recordType{
	"A": {dns.TypeA, func(rr dns.RR) (string, bool) {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), true
		}
		return "", false
	}},
	"AAAA": {dns.TypeAAAA, func(rr dns.RR) (string, bool) {
		if aaaa, ok := rr.(*dns.AAAA); ok {
			return aaaa.AAAA.String(), true
		}
		return "", false
	}},
	"MX": {dns.TypeMX, func(rr dns.RR) (string, bool) {
		if mx, ok := rr.(*dns.MX); ok {
			return fmt.Sprintf("%d %s", mx.Preference, strings.TrimSuffix(mx.Mx, ".")), true
		}
		return "", false
	}},
	"TXT": {dns.TypeTXT, func(rr dns.RR) (string, bool) {
		if txt, ok := rr.(*dns.TXT); ok {
			// Join multi-part TXT records
			return strings.Join(txt.Txt, ""), true
		}
		return "", false
	}},
	"NS": {dns.TypeNS, func(rr dns.RR) (string, bool) {
		if ns, ok := rr.(*dns.NS); ok {
			return strings.TrimSuffix(ns.Ns, "."), true
		}
		return "", false
	}},
	"CNAME": {dns.TypeCNAME, func(rr dns.RR) (string, bool) {
		if cname, ok := rr.(*dns.CNAME); ok {
			return strings.TrimSuffix(cname.Target, "."), true
		}
		return "", false
	}},
	"SOA": {dns.TypeSOA, func(rr dns.RR) (string, bool) {
		if soa, ok := rr.(*dns.SOA); ok {
			return fmt.Sprintf("%s %s %d %d %d %d %d",
				strings.TrimSuffix(soa.Ns, "."), strings.TrimSuffix(soa.Mbox, "."),
				soa.Serial, soa.Refresh, soa.Retry, soa.Expire, soa.Minttl), true
		}
		return "", false
	}},
}

// SupportedTypes returns the record types the client can resolve, sorted
func SupportedTypes() []string {
	types := make([]string, 0, len(supportedTypes))
	for t := range supportedTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ValidateRecordTypes checks that every entry is a supported record type
func ValidateRecordTypes(types []string) error {
	for _, t := range types {
		if _, ok := supportedTypes[strings.ToUpper(t)]; !ok {
			return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedType, t, strings.Join(SupportedTypes(), ", "))
		}
	}
	return nil
}

// Client provides DNS query functionality
type Client struct {
	dnsServers  []string
	timeout     time.Duration
	retries     int
	retryDelay  time.Duration
	recordTypes []string
}

// NewClient creates a new DNS client with the specified timeout that resolves
// recordTypes, or DefaultRecordTypes when none are given
func NewClient(timeout time.Duration, recordTypes ...string) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if len(recordTypes) == 0 {
		recordTypes = DefaultRecordTypes
	}

	types := make([]string, 0, len(recordTypes))
	for _, t := range recordTypes {
		types = append(types, strings.ToUpper(strings.TrimSpace(t)))
	}

	return &Client{
		timeout:     timeout,
		retries:     defaultRetries,
		retryDelay:  defaultRetryDelay,
		dnsServers:  getSystemDNSServers(),
		recordTypes: types,
	}
}

// SetServers overrides the system resolvers. Entries without a port get :53.
func (c *Client) SetServers(servers []string) {
	if len(servers) == 0 {
		return
	}
	resolved := make([]string, 0, len(servers))
	for _, server := range servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		resolved = append(resolved, server)
	}
	c.dnsServers = resolved
}

// RecordTypes returns the record types resolved by Resolve
func (c *Client) RecordTypes() []string {
	return append([]string(nil), c.recordTypes...)
}

// getSystemDNSServers returns the system's DNS servers or defaults
func getSystemDNSServers() []string {
	config, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(config.Servers) == 0 {
		// Fall back to well-known public DNS servers
		return []string{"8.8.8.8:53", "1.1.1.1:53"}
	}

	servers := make([]string, 0, len(config.Servers))
	for _, server := range config.Servers {
		servers = append(servers, net.JoinHostPort(server, config.Port))
	}
	return servers
}

// Resolve queries every configured record type concurrently. A failing type
// only affects its own entry.
func (c *Client) Resolve(ctx context.Context, domain string) models.DNSReport {
	type queryResult struct {
		recordType string
		values     []string
		err        error
	}

	results := make(chan queryResult, len(c.recordTypes))
	for _, rt := range c.recordTypes {
		go func(rt string) {
			values, err := c.Query(ctx, domain, rt)
			results <- queryResult{recordType: rt, values: values, err: err}
		}(rt)
	}

	report := make(models.DNSReport, len(c.recordTypes))
	for range c.recordTypes {
		qr := <-results
		if qr.err != nil {
			report[qr.recordType] = models.RecordResult{Error: categorizeError(qr.err)}
			continue
		}
		report[qr.recordType] = models.RecordResult{Values: qr.values}
	}
	return report
}

// Query resolves one record type and returns the rendered values in the
// order the server returned them
func (c *Client) Query(ctx context.Context, domain, recordType string) ([]string, error) {
	rt, ok := supportedTypes[recordType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, recordType)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), rt.qtype)

	resp, err := c.query(ctx, msg)
	if err != nil {
		return nil, err
	}

	if resp.Rcode == dns.RcodeNameError {
		return nil, fmt.Errorf("%s: %w", domain, ErrNXDomain)
	}

	var values []string
	for _, ans := range resp.Answer {
		if v, ok := rt.render(ans); ok {
			values = append(values, v)
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%s %s: %w", domain, recordType, ErrNoAnswer)
	}
	return values, nil
}

// query performs a DNS query with retry logic. NXDOMAIN responses are
// returned as-is; transport errors and other rcodes are retried.
func (c *Client) query(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	client := &dns.Client{
		Timeout: c.timeout,
		Net:     "udp",
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for _, server := range c.dnsServers {
			resp, _, err := client.ExchangeContext(ctx, msg, server)
			if err == nil && resp.Truncated {
				tcpClient := &dns.Client{Timeout: c.timeout, Net: "tcp"}
				resp, _, err = tcpClient.ExchangeContext(ctx, msg, server)
			}
			if err != nil {
				lastErr = err
				continue
			}

			// Check for DNS errors
			if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
				lastErr = fmt.Errorf("DNS error: %s", dns.RcodeToString[resp.Rcode])
				continue
			}

			return resp, nil
		}

		// Wait before retry (except for last attempt)
		if attempt < c.retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * c.retryDelay):
			}
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("DNS query failed after %d attempts: %w", c.retries, lastErr)
	}
	return nil, fmt.Errorf("DNS query failed after %d attempts", c.retries)
}

// categorizeError converts DNS errors to user-friendly messages
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNXDomain):
		return ErrNXDomain.Error()
	case errors.Is(err, ErrNoAnswer):
		return "no records found"
	case errors.Is(err, ErrUnsupportedType):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "DNS query timeout"
	case errors.Is(err, context.Canceled):
		return "DNS query cancelled"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "DNS query timeout"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "SERVFAIL"):
		return "server failure (SERVFAIL)"
	case strings.Contains(errStr, "REFUSED"):
		return "query refused"
	case strings.Contains(errStr, "i/o timeout"):
		return "DNS query timeout"
	case strings.Contains(errStr, "connection refused"):
		return "DNS server connection refused"
	default:
		return errStr
	}
}
