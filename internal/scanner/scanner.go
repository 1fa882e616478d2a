// Package scanner runs the certificate, DNS, header and optional WHOIS
// inspectors for a domain concurrently and joins their results into one report
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/commjoen/domainposture/internal/certificate"
	"github.com/commjoen/domainposture/internal/dns"
	"github.com/commjoen/domainposture/internal/headers"
	"github.com/commjoen/domainposture/internal/target"
	"github.com/commjoen/domainposture/internal/whois"
	"github.com/commjoen/domainposture/pkg/models"
)

const (
	defaultTimeout     = 5 * time.Second
	defaultDeadline    = 15 * time.Second
	defaultConcurrency = 4
)

var (
	// ErrDeadlineExceeded describes inspectors cut off by the overall scan deadline
	ErrDeadlineExceeded = errors.New("scan deadline exceeded")
	// ErrCancelled describes inspectors cut off because the caller cancelled the scan
	ErrCancelled = errors.New("scan cancelled")
)

// CertificateInspector reports on a domain's TLS certificate
type CertificateInspector interface {
	Inspect(ctx context.Context, domain string) models.CertificateReport
}

// DNSResolver resolves the configured record types for a domain
type DNSResolver interface {
	Resolve(ctx context.Context, domain string) models.DNSReport
	RecordTypes() []string
}

// HeaderAnalyzer assesses a domain's HTTP security headers
type HeaderAnalyzer interface {
	Analyze(ctx context.Context, domain string) models.HeaderAssessment
}

// WHOISLookup fetches registration data for a domain
type WHOISLookup interface {
	Lookup(ctx context.Context, domain string) *models.WHOISReport
}

// Options configures a Scanner built by New
type Options struct {
	// Timeout bounds each inspector's network operation
	Timeout time.Duration
	// Deadline bounds the whole scan of one domain
	Deadline     time.Duration
	RecordTypes  []string
	DNSServers   []string
	MaxRedirects int
	WHOIS        bool
	Logger       *zap.Logger
	// Progress, when set, is called by ScanAll after each domain completes
	Progress func(done, total int)
}

// Scanner orchestrates the inspectors
type Scanner struct {
	cert     CertificateInspector
	dns      DNSResolver
	headers  HeaderAnalyzer
	whois    WHOISLookup
	deadline time.Duration
	logger   *zap.Logger
	progress func(done, total int)
	now      func() time.Time
}

// New builds a Scanner backed by the network inspectors
func New(opts Options) *Scanner {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	dnsClient := dns.NewClient(opts.Timeout, opts.RecordTypes...)
	dnsClient.SetServers(opts.DNSServers)

	var whoisClient WHOISLookup
	if opts.WHOIS {
		whoisClient = whois.NewClient(opts.Timeout)
	}

	s := newScanner(
		certificate.NewInspector(opts.Timeout),
		dnsClient,
		headers.NewAnalyzer(opts.Timeout, opts.MaxRedirects),
		whoisClient,
		opts.Deadline,
		opts.Logger,
	)
	s.progress = opts.Progress
	return s
}

func newScanner(cert CertificateInspector, resolver DNSResolver, analyzer HeaderAnalyzer, lookup WHOISLookup, deadline time.Duration, logger *zap.Logger) *Scanner {
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		cert:     cert,
		dns:      resolver,
		headers:  analyzer,
		whois:    lookup,
		deadline: deadline,
		logger:   logger,
		now:      time.Now,
	}
}

// Scan validates raw and inspects the resulting domain. The only error
// returned wraps target.ErrInvalidDomain; inspector failures are recorded in
// the report.
func (s *Scanner) Scan(ctx context.Context, raw string) (models.ScanReport, error) {
	domain, err := target.Parse(raw)
	if err != nil {
		return models.ScanReport{}, err
	}

	start := s.now()
	log := s.logger.With(zap.String("domain", domain))
	log.Debug("scan started", zap.Duration("deadline", s.deadline))

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	certCh := make(chan models.CertificateReport, 1)
	dnsCh := make(chan models.DNSReport, 1)
	headersCh := make(chan models.HeaderAssessment, 1)
	var whoisCh chan *models.WHOISReport

	go func() { certCh <- s.cert.Inspect(ctx, domain) }()
	go func() { dnsCh <- s.dns.Resolve(ctx, domain) }()
	go func() { headersCh <- s.headers.Analyze(ctx, domain) }()

	pending := 3
	if s.whois != nil {
		whoisCh = make(chan *models.WHOISReport, 1)
		go func() { whoisCh <- s.whois.Lookup(ctx, domain) }()
		pending++
	}

	report := models.ScanReport{Domain: domain, ScannedAt: start.UTC()}
	var gotCert, gotDNS, gotHeaders, gotWHOIS bool

collect:
	for pending > 0 {
		select {
		case r := <-certCh:
			report.Certificate, gotCert = r, true
		case r := <-dnsCh:
			report.DNS, gotDNS = r, true
		case r := <-headersCh:
			report.Headers, gotHeaders = r, true
		case r := <-whoisCh:
			report.WHOIS, gotWHOIS = r, true
		case <-ctx.Done():
			break collect
		}
		pending--
	}

	if pending > 0 {
		cause := s.interruption(ctx)
		log.Debug("scan interrupted", zap.Int("pending", pending), zap.Error(cause))

		if !gotCert {
			report.Certificate = models.FailedCertificate(cause.Error())
		}
		if !gotDNS {
			report.DNS = s.timedOutDNS(cause)
		}
		if !gotHeaders {
			report.Headers = headers.Failure(cause)
		}
		if s.whois != nil && !gotWHOIS {
			report.WHOIS = &models.WHOISReport{Error: cause.Error()}
		}
	}

	elapsed := s.now().Sub(start)
	report.DurationMs = elapsed.Milliseconds()
	log.Debug("scan finished",
		zap.Duration("duration", elapsed),
		zap.String("certificate", string(report.Certificate.Status)),
		zap.Int("weaknesses", len(report.Headers.Weaknesses)),
	)
	return report, nil
}

// interruption returns the error recorded for inspectors that did not finish
func (s *Scanner) interruption(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrDeadlineExceeded, s.deadline)
	}
	return ErrCancelled
}

func (s *Scanner) timedOutDNS(cause error) models.DNSReport {
	types := s.dns.RecordTypes()
	report := make(models.DNSReport, len(types))
	for _, rt := range types {
		report[rt] = models.RecordResult{Error: cause.Error()}
	}
	return report
}

// ScanAll scans domains with at most concurrency scans in flight. Entries
// keep the order of domains; a rejected input is recorded on its entry and
// does not stop the batch.
func (s *Scanner) ScanAll(ctx context.Context, domains []string, concurrency int) []models.BatchEntry {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	entries := make([]models.BatchEntry, len(domains))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var completed atomic.Int64

	for i, raw := range domains {
		entries[i].Input = raw

		select {
		case <-ctx.Done():
			entries[i].Error = ErrCancelled.Error()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int, raw string) {
			defer wg.Done()
			defer func() { <-sem }()
			if s.progress != nil {
				defer func() { s.progress(int(completed.Add(1)), len(domains)) }()
			}

			report, err := s.Scan(ctx, raw)
			if err != nil {
				s.logger.Debug("domain rejected", zap.String("input", raw), zap.Error(err))
				entries[idx].Error = err.Error()
				return
			}
			entries[idx].Report = &report
		}(i, raw)
	}

	wg.Wait()
	return entries
}
