// Package models provides tests for shared data structures
package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFailedCertificate(t *testing.T) {
	report := FailedCertificate("dial tcp: connection refused")

	if report.Status != StatusInvalid {
		t.Errorf("Expected status Invalid, got %s", report.Status)
	}
	if report.Issuer != Unknown || report.Expiration != Unknown {
		t.Errorf("Expected Unknown issuer and expiration, got %q / %q", report.Issuer, report.Expiration)
	}
	if report.Valid {
		t.Error("Expected Valid to be false")
	}
	if report.Detail != "dial tcp: connection refused" {
		t.Errorf("Detail should be preserved, got %q", report.Detail)
	}
}

func TestDNSReportTypes(t *testing.T) {
	report := DNSReport{
		"MX":    {Error: "no answer"},
		"CAA":   {Values: []string{"0 issue \"letsencrypt.org\""}},
		"A":     {Values: []string{"93.184.216.34"}},
		"SOA":   {Error: "timeout"},
		"HTTPS": {Error: "no answer"},
	}

	got := strings.Join(report.Types(), ",")
	want := "A,MX,SOA,CAA,HTTPS"
	if got != want {
		t.Errorf("Types() = %s, want %s", got, want)
	}
}

func TestRecordResultOK(t *testing.T) {
	if !(RecordResult{Values: []string{"1.2.3.4"}}).OK() {
		t.Error("Expected values-only result to be OK")
	}
	if (RecordResult{Error: "NXDOMAIN"}).OK() {
		t.Error("Expected error result not to be OK")
	}
}

func TestScanReportJSONShape(t *testing.T) {
	report := ScanReport{
		Domain:    "example.com",
		ScannedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		Certificate: CertificateReport{
			Status:     StatusValid,
			Issuer:     "CN=DigiCert Global G2 TLS RSA SHA256 2020 CA1,O=DigiCert Inc,C=US",
			Expiration: "2030-01-01 00:00:00",
			Valid:      true,
		},
		DNS: DNSReport{
			"A":  {Values: []string{"93.184.216.34"}},
			"MX": {Error: "no answer"},
		},
		Headers: HeaderAssessment{
			Strengths:  []string{"Strict-Transport-Security: HSTS ensures secure HTTPS connections."},
			Weaknesses: []string{"Referrer-Policy: Missing - Controls referrer information sharing."},
		},
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("Failed to marshal ScanReport: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal ScanReport: %v", err)
	}

	for _, key := range []string{"domain", "scanned_at", "certificate", "dns", "headers"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected key %q in JSON output", key)
		}
	}
	if _, ok := raw["whois"]; ok {
		t.Error("whois should be omitted when not collected")
	}

	dns := raw["dns"].(map[string]interface{})
	mx := dns["MX"].(map[string]interface{})
	if _, ok := mx["values"]; ok {
		t.Error("MX entry with an error should not carry values")
	}
	if mx["error"] != "no answer" {
		t.Errorf("Expected MX error 'no answer', got %v", mx["error"])
	}
}

func TestBatchSummarize(t *testing.T) {
	batch := &BatchResult{
		Entries: []BatchEntry{
			{Input: "example.com", Report: &ScanReport{
				Certificate: CertificateReport{Valid: true},
				Headers:     HeaderAssessment{Weaknesses: []string{"a", "b"}},
			}},
			{Input: "expired.example", Report: &ScanReport{
				Headers: HeaderAssessment{Weaknesses: []string{"c"}},
			}},
			{Input: "bad domain", Error: "invalid domain"},
		},
	}

	batch.Summarize()

	s := batch.Summary
	if s.TotalDomains != 3 || s.Scanned != 2 || s.Rejected != 1 {
		t.Errorf("Unexpected counts: %+v", s)
	}
	if s.ValidCertificate != 1 {
		t.Errorf("Expected 1 valid certificate, got %d", s.ValidCertificate)
	}
	if s.Weaknesses != 3 {
		t.Errorf("Expected 3 weaknesses, got %d", s.Weaknesses)
	}
}
