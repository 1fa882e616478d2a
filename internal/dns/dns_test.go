package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// testZone answers from a fixed record set. Names missing from the zone get
// NXDOMAIN; names listed in servfail get SERVFAIL.
type testZone struct {
	records  map[string][]string // "name.|TYPE" -> RR text
	names    map[string]bool
	servfail map[string]bool
	queries  atomic.Int32
}

func newTestZone(rrs ...string) *testZone {
	z := &testZone{
		records:  make(map[string][]string),
		names:    make(map[string]bool),
		servfail: make(map[string]bool),
	}
	for _, text := range rrs {
		rr, err := dns.NewRR(text)
		if err != nil {
			panic(err)
		}
		h := rr.Header()
		key := h.Name + "|" + dns.TypeToString[h.Rrtype]
		z.records[key] = append(z.records[key], text)
		z.names[h.Name] = true
	}
	return z
}

func (z *testZone) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	z.queries.Add(1)

	m := new(dns.Msg)
	m.SetReply(r)
	q := r.Question[0]

	switch {
	case z.servfail[q.Name]:
		m.Rcode = dns.RcodeServerFailure
	case !z.names[q.Name]:
		m.Rcode = dns.RcodeNameError
	default:
		for _, text := range z.records[q.Name+"|"+dns.TypeToString[q.Qtype]] {
			rr, _ := dns.NewRR(text)
			m.Answer = append(m.Answer, rr)
		}
	}
	_ = w.WriteMsg(m)
}

// startTestServer runs zone on a local UDP port and returns its address
func startTestServer(t *testing.T, zone *testZone) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		Handler:           zone,
		NotifyStartedFunc: func() { close(started) },
	}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func newTestClient(t *testing.T, zone *testZone, recordTypes ...string) *Client {
	t.Helper()
	client := NewClient(time.Second, recordTypes...)
	client.SetServers([]string{startTestServer(t, zone)})
	client.retryDelay = 10 * time.Millisecond
	return client
}

func TestNewClient(t *testing.T) {
	// Test with zero timeout (should use default)
	client := NewClient(0)
	if client.timeout != defaultTimeout {
		t.Errorf("Expected default timeout %v, got %v", defaultTimeout, client.timeout)
	}
	if strings.Join(client.RecordTypes(), ",") != "A,MX" {
		t.Errorf("Expected default record types A,MX, got %v", client.RecordTypes())
	}

	client = NewClient(60*time.Second, "a", " txt ")
	if client.timeout != 60*time.Second {
		t.Errorf("Expected custom timeout, got %v", client.timeout)
	}
	if strings.Join(client.RecordTypes(), ",") != "A,TXT" {
		t.Errorf("Expected normalized record types, got %v", client.RecordTypes())
	}

	// Test that DNS servers are set
	if len(client.dnsServers) == 0 {
		t.Error("Expected DNS servers to be set")
	}
}

func TestSetServers(t *testing.T) {
	client := NewClient(time.Second)
	client.SetServers([]string{"9.9.9.9", "127.0.0.1:5353", "2001:db8::1"})

	want := []string{"9.9.9.9:53", "127.0.0.1:5353", "[2001:db8::1]:53"}
	for i, server := range client.dnsServers {
		if server != want[i] {
			t.Errorf("dnsServers[%d] = %s, want %s", i, server, want[i])
		}
	}

	client.SetServers(nil)
	if len(client.dnsServers) != 3 {
		t.Error("Empty server list should keep existing servers")
	}
}

func TestGetSystemDNSServers(t *testing.T) {
	servers := getSystemDNSServers()
	if len(servers) == 0 {
		t.Error("Expected at least one DNS server")
	}

	// Verify all servers have port
	for _, server := range servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			t.Errorf("Server %s should have port: %v", server, err)
		}
	}
}

func TestResolveAOnly(t *testing.T) {
	zone := newTestZone(
		"a-only.test. 300 IN A 192.0.2.2",
		"a-only.test. 300 IN A 192.0.2.1",
	)
	report := newTestClient(t, zone).Resolve(context.Background(), "a-only.test")

	a := report["A"]
	if !a.OK() {
		t.Fatalf("Expected A to resolve, got error %q", a.Error)
	}
	// Response order is preserved, not sorted
	if strings.Join(a.Values, ",") != "192.0.2.2,192.0.2.1" {
		t.Errorf("Unexpected A values %v", a.Values)
	}

	mx := report["MX"]
	if mx.OK() || len(mx.Values) != 0 {
		t.Errorf("Expected MX error, got %+v", mx)
	}
}

func TestResolveMXOnly(t *testing.T) {
	zone := newTestZone(
		"mx-only.test. 300 IN MX 20 backup.mx-only.test.",
		"mx-only.test. 300 IN MX 10 mail.mx-only.test.",
	)
	report := newTestClient(t, zone).Resolve(context.Background(), "mx-only.test")

	if report["A"].OK() {
		t.Errorf("Expected A error, got %+v", report["A"])
	}
	mx := report["MX"]
	if strings.Join(mx.Values, ",") != "20 backup.mx-only.test,10 mail.mx-only.test" {
		t.Errorf("Unexpected MX values %v", mx.Values)
	}
}

func TestResolveNXDomain(t *testing.T) {
	zone := newTestZone("exists.test. 300 IN A 192.0.2.1")
	client := newTestClient(t, zone)

	report := client.Resolve(context.Background(), "missing.test")

	for _, rt := range []string{"A", "MX"} {
		if report[rt].Error != "domain not found (NXDOMAIN)" {
			t.Errorf("%s: expected NXDOMAIN error, got %+v", rt, report[rt])
		}
	}

	// NXDOMAIN is definitive: one query per type, no retries
	if got := zone.queries.Load(); got != 2 {
		t.Errorf("Expected 2 queries, got %d", got)
	}
}

func TestResolveServfailRetried(t *testing.T) {
	zone := newTestZone("broken.test. 300 IN A 192.0.2.1")
	zone.servfail["broken.test."] = true
	client := newTestClient(t, zone, "A")

	report := client.Resolve(context.Background(), "broken.test")

	if report["A"].Error != "server failure (SERVFAIL)" {
		t.Errorf("Expected SERVFAIL error, got %+v", report["A"])
	}
	if got := zone.queries.Load(); got != int32(defaultRetries) {
		t.Errorf("Expected %d attempts, got %d", defaultRetries, got)
	}
}

func TestResolveExtendedTypes(t *testing.T) {
	zone := newTestZone(
		"full.test. 300 IN AAAA 2001:db8::1",
		"full.test. 300 IN TXT \"v=spf1 \" \"-all\"",
		"full.test. 300 IN NS ns1.full.test.",
		"full.test. 300 IN SOA ns1.full.test. hostmaster.full.test. 2024010101 3600 600 604800 300",
	)
	report := newTestClient(t, zone, "AAAA", "TXT", "NS", "SOA", "CNAME").Resolve(context.Background(), "full.test")

	checks := map[string]string{
		"AAAA": "2001:db8::1",
		"TXT":  "v=spf1 -all",
		"NS":   "ns1.full.test",
		"SOA":  "ns1.full.test hostmaster.full.test 2024010101 3600 600 604800 300",
	}
	for rt, want := range checks {
		got := report[rt]
		if len(got.Values) != 1 || got.Values[0] != want {
			t.Errorf("%s = %+v, want [%s]", rt, got, want)
		}
	}
	if report["CNAME"].Error != "no records found" {
		t.Errorf("Expected CNAME no records, got %+v", report["CNAME"])
	}
}

func TestResolveUnsupportedType(t *testing.T) {
	zone := newTestZone("a-only.test. 300 IN A 192.0.2.1")
	report := newTestClient(t, zone, "A", "LOC").Resolve(context.Background(), "a-only.test")

	if !report["A"].OK() {
		t.Errorf("A should be unaffected by an unsupported sibling type, got %+v", report["A"])
	}
	if !strings.Contains(report["LOC"].Error, "unsupported record type") {
		t.Errorf("Expected unsupported type error, got %+v", report["LOC"])
	}
}

func TestResolveCancellation(t *testing.T) {
	client := NewClient(1 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := client.Resolve(ctx, "example.com")

	if len(report) != 2 {
		t.Fatalf("Expected an entry per record type, got %d", len(report))
	}
	for rt, result := range report {
		if result.OK() {
			t.Errorf("%s: expected error after cancellation", rt)
		}
	}
}

func TestValidateRecordTypes(t *testing.T) {
	if err := ValidateRecordTypes([]string{"A", "mx", "SOA"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	err := ValidateRecordTypes([]string{"A", "SRV"})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected ErrUnsupportedType, got %v", err)
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"NXDOMAIN", fmt.Errorf("x: %w", ErrNXDomain), "domain not found (NXDOMAIN)"},
		{"no answer", fmt.Errorf("x MX: %w", ErrNoAnswer), "no records found"},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "DNS query timeout"},
		{"cancelled", context.Canceled, "DNS query cancelled"},
		{"SERVFAIL", errors.New("DNS error: SERVFAIL"), "server failure (SERVFAIL)"},
		{"REFUSED", errors.New("DNS error: REFUSED"), "query refused"},
		{"i/o timeout", errors.New("read udp: i/o timeout"), "DNS query timeout"},
		{"connection refused", errors.New("read udp: connection refused"), "DNS server connection refused"},
		{"other error", errors.New("unknown error"), "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := categorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("categorizeError() = %q, want %q", result, tt.expected)
			}
		})
	}
}
