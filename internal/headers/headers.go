// Package headers evaluates a domain's HTTP response headers against a fixed
// checklist of security headers
package headers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/commjoen/domainposture/internal/target"
	"github.com/commjoen/domainposture/pkg/models"
)

const (
	defaultTimeout = 5 * time.Second
	// DefaultMaxRedirects is the number of redirects followed before the request fails
	DefaultMaxRedirects = 5
	userAgent           = "domainposture/1.0"
)

// Check is one entry of the security header checklist
type Check struct {
	Header    string
	Rationale string
}

// Checklist is evaluated in declaration order
var Checklist = []Check{
	{"Strict-Transport-Security", "HSTS ensures secure HTTPS connections."},
	{"Content-Security-Policy", "CSP mitigates cross-site scripting (XSS) attacks."},
	{"X-Content-Type-Options", "Prevents MIME type confusion."},
	{"Referrer-Policy", "Controls referrer information sharing."},
}

// Analyzer fetches a domain's HTTPS origin and assesses its headers
type Analyzer struct {
	client       *http.Client
	maxRedirects int
}

// NewAnalyzer creates a header analyzer with the specified timeout. It follows
// up to maxRedirects redirects; zero or a negative value evaluates the first
// response as is.
func NewAnalyzer(timeout time.Duration, maxRedirects int) *Analyzer {
	if timeout == 0 {
		timeout = defaultTimeout
	}

	a := &Analyzer{maxRedirects: maxRedirects}
	a.client = &http.Client{
		Timeout:       timeout,
		CheckRedirect: a.checkRedirect,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			DialContext: (&net.Dialer{
				Timeout: timeout,
			}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			DisableKeepAlives:     true,
		},
	}
	return a
}

func (a *Analyzer) checkRedirect(req *http.Request, via []*http.Request) error {
	if a.maxRedirects <= 0 {
		return http.ErrUseLastResponse
	}
	if len(via) > a.maxRedirects {
		return fmt.Errorf("stopped after %d redirects", a.maxRedirects)
	}
	return nil
}

// Analyze issues a single GET to https://<domain> and evaluates the returned
// headers. It never returns an error; a failed request yields no strengths
// and one weakness describing the failure.
func (a *Analyzer) Analyze(ctx context.Context, domain string) models.HeaderAssessment {
	resp, err := a.fetch(ctx, target.Origin(domain))
	if err != nil {
		return Failure(err)
	}
	defer resp.Body.Close()

	return Evaluate(resp.Header)
}

func (a *Analyzer) fetch(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	return a.client.Do(req)
}

// Evaluate checks header presence against the checklist. Only key presence
// matters; values, even empty ones, are not inspected.
func Evaluate(h http.Header) models.HeaderAssessment {
	assessment := models.HeaderAssessment{
		Strengths:  []string{},
		Weaknesses: []string{},
	}

	for _, check := range Checklist {
		if _, ok := h[http.CanonicalHeaderKey(check.Header)]; ok {
			assessment.Strengths = append(assessment.Strengths, fmt.Sprintf("%s: %s", check.Header, check.Rationale))
		} else {
			assessment.Weaknesses = append(assessment.Weaknesses, fmt.Sprintf("%s: Missing - %s", check.Header, check.Rationale))
		}
	}
	return assessment
}

// Failure is the assessment reported when the request could not be made
func Failure(err error) models.HeaderAssessment {
	return models.HeaderAssessment{
		Strengths:  []string{},
		Weaknesses: []string{"Error analyzing headers: " + categorizeError(err)},
	}
}

// categorizeError converts various network errors into user-friendly messages
// while keeping the underlying error text
func categorizeError(err error) string {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "redirects"):
		return fmt.Sprintf("too many redirects: %s", errStr)
	case strings.Contains(errStr, "connection refused"):
		return fmt.Sprintf("connection refused: %s", errStr)
	case strings.Contains(errStr, "no such host"):
		return fmt.Sprintf("DNS resolution failed: %s", errStr)
	case strings.Contains(errStr, "Client.Timeout"),
		strings.Contains(errStr, "i/o timeout"),
		strings.Contains(errStr, "context deadline exceeded"):
		return fmt.Sprintf("request timeout: %s", errStr)
	case strings.Contains(errStr, "x509"), strings.Contains(errStr, "certificate"):
		return fmt.Sprintf("certificate error: %s", errStr)
	default:
		return errStr
	}
}
