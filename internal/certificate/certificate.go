// Package certificate inspects the TLS certificate a domain presents on port 443
package certificate

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/commjoen/domainposture/pkg/models"
)

const (
	defaultTimeout = 5 * time.Second
	defaultPort    = "443"

	// NativeDateLayout is the notAfter rendering produced by OpenSSL, e.g. "Jan  1 00:00:00 2030 GMT"
	NativeDateLayout = "Jan _2 15:04:05 2006 GMT"
	// ExpirationLayout is the normalized expiration format used in reports
	ExpirationLayout = "2006-01-02 15:04:05"
)

// Inspector retrieves and evaluates peer certificates
type Inspector struct {
	timeout time.Duration
	port    string
	rootCAs *x509.CertPool // nil uses the system trust store
	now     func() time.Time
}

// NewInspector creates a certificate inspector with the specified timeout
func NewInspector(timeout time.Duration) *Inspector {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Inspector{
		timeout: timeout,
		port:    defaultPort,
		now:     time.Now,
	}
}

// Inspect connects to domain:443, performs a verified TLS handshake with SNI
// set to domain and reports on the leaf certificate. It never returns an
// error; failures are described in the report.
func (i *Inspector) Inspect(ctx context.Context, domain string) models.CertificateReport {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: i.timeout},
		Config: &tls.Config{
			ServerName: domain,
			MinVersion: tls.VersionTLS12,
			RootCAs:    i.rootCAs,
			Time:       i.now,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(domain, i.port))
	if err != nil {
		return i.failure(err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		report := models.FailedCertificate("no peer certificate presented")
		report.Status = models.StatusAbsent
		return report
	}

	report := i.describe(state.PeerCertificates[0])
	report.TLSVersion = tlsVersionName(state.Version)
	if report.Valid {
		report.Status = models.StatusValid
	} else {
		report.Status = models.StatusInvalid
		report.Detail = "certificate expired"
	}
	return report
}

// failure builds the report for a failed connect or handshake. When the
// handshake was rejected during chain verification the unverified leaf is
// still described so that a stale issuer and expiration remain visible.
func (i *Inspector) failure(err error) models.CertificateReport {
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) && len(verifyErr.UnverifiedCertificates) > 0 {
		report := i.describe(verifyErr.UnverifiedCertificates[0])
		report.Status = models.StatusInvalid
		report.Valid = false
		report.Detail = categorizeError(err)
		return report
	}
	return models.FailedCertificate(categorizeError(err))
}

// describe extracts the report fields from a leaf certificate. Status is
// left for the caller.
func (i *Inspector) describe(cert *x509.Certificate) models.CertificateReport {
	return models.CertificateReport{
		Issuer: cert.Issuer.String(),
		IssuerName: &models.DistinguishedName{
			CommonName:   cert.Issuer.CommonName,
			Organization: cert.Issuer.Organization,
			Country:      cert.Issuer.Country,
		},
		Subject:    cert.Subject.String(),
		DNSNames:   cert.DNSNames,
		Expiration: cert.NotAfter.UTC().Format(ExpirationLayout),
		Valid:      cert.NotAfter.After(i.now()),
	}
}

// FormatCertificateDate converts a native certificate date such as
// "Jan  1 00:00:00 2030 GMT" to "2030-01-01 00:00:00". Input that does not
// parse is returned unchanged.
func FormatCertificateDate(raw string) string {
	t, err := time.Parse(NativeDateLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format(ExpirationLayout)
}

func tlsVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}

// categorizeError prefixes network and TLS errors with a short category while
// keeping the underlying error text
func categorizeError(err error) string {
	errStr := err.Error()

	var category string
	switch {
	case strings.Contains(errStr, "connection refused"):
		category = "connection refused"
	case strings.Contains(errStr, "no such host"):
		category = "DNS resolution failed"
	case strings.Contains(errStr, "i/o timeout"), strings.Contains(errStr, "context deadline exceeded"):
		category = "connection timeout"
	case strings.Contains(errStr, "x509"), strings.Contains(errStr, "certificate"):
		category = "certificate error"
	case strings.Contains(errStr, "tls"), strings.Contains(errStr, "handshake"):
		category = "TLS error"
	default:
		return errStr
	}
	return fmt.Sprintf("%s: %s", category, errStr)
}
