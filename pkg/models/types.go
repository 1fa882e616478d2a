// Package models contains shared data structures used across the application
package models

import (
	"sort"
	"time"
)

// Unknown is reported for certificate fields that could not be obtained
const Unknown = "Unknown"

// CertificateStatus is the outcome of a certificate inspection
type CertificateStatus string

const (
	StatusValid   CertificateStatus = "Valid"
	StatusInvalid CertificateStatus = "Invalid"
	StatusAbsent  CertificateStatus = "Absent"
)

// DistinguishedName holds the commonly displayed parts of an X.509 name
type DistinguishedName struct {
	CommonName   string   `json:"common_name,omitempty"`
	Organization []string `json:"organization,omitempty"`
	Country      []string `json:"country,omitempty"`
}

// CertificateReport contains the TLS certificate inspection result
type CertificateReport struct {
	Status     CertificateStatus  `json:"status"`
	Issuer     string             `json:"issuer"`
	IssuerName *DistinguishedName `json:"issuer_name,omitempty"`
	Subject    string             `json:"subject,omitempty"`
	DNSNames   []string           `json:"dns_names,omitempty"`
	Expiration string             `json:"expiration"`
	Valid      bool               `json:"valid"`
	TLSVersion string             `json:"tls_version,omitempty"`
	Detail     string             `json:"detail,omitempty"`
}

// FailedCertificate returns the best-effort report used when no certificate
// could be read at all
func FailedCertificate(detail string) CertificateReport {
	return CertificateReport{
		Status:     StatusInvalid,
		Issuer:     Unknown,
		Expiration: Unknown,
		Valid:      false,
		Detail:     detail,
	}
}

// RecordResult holds either the resolved values for one record type or the
// reason resolution failed. Exactly one of the two is set.
type RecordResult struct {
	Values []string `json:"values,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// OK reports whether the record type resolved
func (r RecordResult) OK() bool {
	return r.Error == ""
}

// DNSReport maps a record type (A, MX, ...) to its result
type DNSReport map[string]RecordResult

// RecordTypeOrder is the display order for record types
var RecordTypeOrder = []string{"A", "AAAA", "MX", "TXT", "NS", "CNAME", "SOA"}

// Types returns the record types present in the report in display order.
// Types outside RecordTypeOrder follow, sorted alphabetically.
func (r DNSReport) Types() []string {
	types := make([]string, 0, len(r))
	known := make(map[string]bool, len(RecordTypeOrder))
	for _, t := range RecordTypeOrder {
		known[t] = true
		if _, ok := r[t]; ok {
			types = append(types, t)
		}
	}

	var extra []string
	for t := range r {
		if !known[t] {
			extra = append(extra, t)
		}
	}
	sort.Strings(extra)
	return append(types, extra...)
}

// HeaderAssessment contains security header findings in checklist order
type HeaderAssessment struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// WHOISReport contains parsed WHOIS registration data
type WHOISReport struct {
	Domain         string     `json:"domain,omitempty"`
	Registrar      string     `json:"registrar,omitempty"`
	RegistrantName string     `json:"registrant_name,omitempty"`
	RegistrantOrg  string     `json:"registrant_org,omitempty"`
	CreationDate   *time.Time `json:"creation_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	UpdatedDate    *time.Time `json:"updated_date,omitempty"`
	Nameservers    []string   `json:"nameservers,omitempty"`
	Status         []string   `json:"status,omitempty"`
	DNSSEC         string     `json:"dnssec,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// ScanReport is the aggregate result of scanning one domain
type ScanReport struct {
	Domain      string            `json:"domain"`
	ScannedAt   time.Time         `json:"scanned_at"`
	DurationMs  int64             `json:"duration_ms"`
	Certificate CertificateReport `json:"certificate"`
	DNS         DNSReport         `json:"dns"`
	Headers     HeaderAssessment  `json:"headers"`
	WHOIS       *WHOISReport      `json:"whois,omitempty"`
}

// BatchEntry is one domain of a multi-domain run. Error is set when the
// domain was rejected before scanning.
type BatchEntry struct {
	Input  string      `json:"input"`
	Report *ScanReport `json:"report,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// BatchResult is the top-level result structure of a CLI run
type BatchResult struct {
	Timestamp time.Time     `json:"timestamp"`
	Entries   []BatchEntry  `json:"entries"`
	Summary   *BatchSummary `json:"summary"`
}

// BatchSummary provides aggregate statistics
type BatchSummary struct {
	TotalDomains     int `json:"total_domains"`
	Scanned          int `json:"scanned"`
	Rejected         int `json:"rejected"`
	ValidCertificate int `json:"valid_certificate"`
	Weaknesses       int `json:"weaknesses"`
}

// Summarize computes the summary for the entries in b
func (b *BatchResult) Summarize() {
	s := &BatchSummary{TotalDomains: len(b.Entries)}
	for _, e := range b.Entries {
		if e.Report == nil {
			s.Rejected++
			continue
		}
		s.Scanned++
		if e.Report.Certificate.Valid {
			s.ValidCertificate++
		}
		s.Weaknesses += len(e.Report.Headers.Weaknesses)
	}
	b.Summary = s
}
