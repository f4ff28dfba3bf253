package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/time/rate"

	"dissonance/internal/model"
	"dissonance/internal/util"
)

// resolveFunc resolves a domain to IPv4 addresses through one code path.
// Failures return (nil, err) and degrade that source for that domain.
type resolveFunc func(ctx context.Context, domain string) ([]string, error)

// DNSProbe asks three independent resolution paths for the same domains:
// the platform resolver, a hand-built DNS query over UDP to a public
// resolver, and a DNS-over-HTTPS JSON query. A compromised local resolver
// is flagged only when it returns an address confirmed by no external
// source; two external sources are flagged against each other only when
// their answers share zero overlap, since legitimate CDN answers vary by
// vantage point.
type DNSProbe struct {
	resolverAddr string
	domains      []string
	limiter      *rate.Limiter

	system resolveFunc
	udp    resolveFunc
	doh    resolveFunc
}

// NewDNSProbe builds the probe with its three real source providers.
func NewDNSProbe(cfg model.DNSConfig) *DNSProbe {
	qps := cfg.QueriesPerSecond
	if qps <= 0 {
		qps = 10
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy),
		},
	}

	p := &DNSProbe{
		resolverAddr: cfg.Resolver,
		domains:      cfg.Domains,
		limiter:      rate.NewLimiter(rate.Limit(qps), 3),
	}
	p.system = resolveSystem
	p.udp = func(ctx context.Context, domain string) ([]string, error) {
		return resolveUDP(ctx, cfg.Resolver, domain, cfg.Timeout)
	}
	p.doh = func(ctx context.Context, domain string) ([]string, error) {
		return resolveDoH(ctx, httpClient, cfg.DoHURL, domain)
	}
	return p
}

func (p *DNSProbe) ID() string   { return "dns-resolver" }
func (p *DNSProbe) Name() string { return "DNS Resolution Cross-Check" }

func (p *DNSProbe) Metadata() model.ProbeMetadata {
	return model.ProbeMetadata{
		FalseClaim:        "the local resolver returns the addresses the rest of the internet sees",
		Sources:           "platform resolver, raw UDP query to a public resolver, DNS-over-HTTPS JSON",
		AdversaryCost:     "must intercept or spoof all three resolution paths coherently, including an authenticated HTTPS channel",
		UserMessage:       "Your system's DNS answers disagree with independent resolvers — possible DNS hijack.",
		FalsePositiveRate: "low; CDN variance is absorbed by comparing against the union of external answers",
	}
}

// Run resolves every test domain through all three paths and applies the
// union/overlap policy per domain and source pair.
func (p *DNSProbe) Run(ctx context.Context) model.ProbeResult {
	started := time.Now()

	var comps []model.SourceComparison
	for _, domain := range p.domains {
		sys := p.query(ctx, p.system, domain)
		udp := p.query(ctx, p.udp, domain)
		doh := p.query(ctx, p.doh, domain)

		comps = append(comps, compareDomain(domain, p.resolverAddr, sys, udp, doh)...)
	}

	return NewResult(p, started, comps, "possible resolver hijack")
}

// query runs one source provider under the shared outbound rate limit.
func (p *DNSProbe) query(ctx context.Context, resolve resolveFunc, domain string) []string {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil
	}
	addrs, err := resolve(ctx, domain)
	if err != nil {
		return nil
	}
	return addrs
}

// compareDomain emits one comparison per source pair that actually has data.
// The local result is judged against the union of all external answers, not
// pairwise; the two external sources are judged on overlap.
func compareDomain(domain, resolverAddr string, sys, udp, doh []string) []model.SourceComparison {
	externalAll := unionSet(udp, doh)

	var comps []model.SourceComparison

	if len(sys) > 0 && len(udp) > 0 {
		comps = append(comps, model.SourceComparison{
			Label:   domain + ": system vs udp",
			Left:    model.SourceValue{Source: "system-resolver", Value: joinAddrs(sys)},
			Right:   model.SourceValue{Source: "udp:" + resolverAddr, Value: joinAddrs(udp)},
			Matches: subsetOf(sys, externalAll),
		})
	}
	if len(sys) > 0 && len(doh) > 0 {
		comps = append(comps, model.SourceComparison{
			Label:   domain + ": system vs doh",
			Left:    model.SourceValue{Source: "system-resolver", Value: joinAddrs(sys)},
			Right:   model.SourceValue{Source: "doh", Value: joinAddrs(doh)},
			Matches: subsetOf(sys, externalAll),
		})
	}
	if len(udp) > 0 && len(doh) > 0 {
		comps = append(comps, model.SourceComparison{
			Label:   domain + ": udp vs doh",
			Left:    model.SourceValue{Source: "udp:" + resolverAddr, Value: joinAddrs(udp)},
			Right:   model.SourceValue{Source: "doh", Value: joinAddrs(doh)},
			Matches: overlaps(udp, doh),
		})
	}
	return comps
}

// subsetOf reports whether every address in got appears in allowed.
func subsetOf(got []string, allowed map[string]bool) bool {
	for _, a := range got {
		if !allowed[a] {
			return false
		}
	}
	return true
}

// overlaps reports whether the two address sets share at least one entry.
func overlaps(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if set[y] {
			return true
		}
	}
	return false
}

func unionSet(sets ...[]string) map[string]bool {
	union := make(map[string]bool)
	for _, set := range sets {
		for _, a := range set {
			union[a] = true
		}
	}
	return union
}

func joinAddrs(addrs []string) string {
	sorted := append([]string(nil), addrs...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// resolveSystem uses the platform's standard name-resolution call.
func resolveSystem(ctx context.Context, domain string) ([]string, error) {
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", domain)
	if err != nil {
		return nil, fmt.Errorf("system lookup %s: %w", domain, err)
	}
	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, ip.String())
	}
	return addrs, nil
}

// resolveUDP sends a hand-built A query directly to the configured resolver
// over UDP with an explicit receive deadline, bypassing the platform
// resolution stack entirely.
func resolveUDP(ctx context.Context, resolverAddr, domain string, timeout time.Duration) ([]string, error) {
	msg := dnsmessage.Message{
		Header: dnsmessage.Header{
			ID:               uint16(rand.Intn(1 << 16)),
			RecursionDesired: true,
		},
		Questions: []dnsmessage.Question{
			{
				Name:  dnsmessage.MustNewName(domain + "."),
				Type:  dnsmessage.TypeA,
				Class: dnsmessage.ClassINET,
			},
		},
	}
	packed, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack query: %w", err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", resolverAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", resolverAddr, err)
	}
	defer conn.Close()

	// Socket-level deadline; the engine imposes no outer timeout.
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if _, err := conn.Write(packed); err != nil {
		return nil, fmt.Errorf("send query: %w", err)
	}

	buf := make([]byte, 1232)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp dnsmessage.Message
	if err := resp.Unpack(buf[:n]); err != nil {
		return nil, fmt.Errorf("unpack response: %w", err)
	}
	if resp.Header.ID != msg.Header.ID {
		return nil, fmt.Errorf("response ID mismatch")
	}

	var addrs []string
	for _, ans := range resp.Answers {
		if a, ok := ans.Body.(*dnsmessage.AResource); ok {
			addrs = append(addrs, net.IP(a.A[:]).String())
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no A records for %s", domain)
	}
	return addrs, nil
}

// dohAnswer is the subset of the DNS-over-HTTPS JSON schema we consume.
type dohAnswer struct {
	Answer []struct {
		Type int    `json:"type"`
		Data string `json:"data"`
	} `json:"Answer"`
}

// resolveDoH issues a DNS-over-HTTPS JSON query. The HTTP client carries the
// request timeout.
func resolveDoH(ctx context.Context, client *http.Client, dohURL, domain string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dohURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("name", domain)
	q.Set("type", "A")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/dns-json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("doh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("doh status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("read doh body: %w", err)
	}

	var parsed dohAnswer
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode doh body: %w", err)
	}

	var addrs []string
	for _, ans := range parsed.Answer {
		// Type 1 = A record; CNAMEs in the chain are skipped.
		if ans.Type == 1 {
			addrs = append(addrs, ans.Data)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no A records for %s", domain)
	}
	return addrs, nil
}
