package probe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"

	"dissonance/internal/model"
)

// cdhashFunc queries the live code-signature identity of one binary.
type cdhashFunc func(ctx context.Context, path string) (string, error)

// allowlistFile is the on-disk schema: binary path to expected cdhash.
type allowlistFile struct {
	Binaries map[string]string `yaml:"binaries"`
}

// AllowlistProbe cross-checks a static allowlist of expected code-signing
// hashes against the live signature of each binary. The cdhash identifies
// exactly one signed binary revision, so equality is strict. A replaced
// system binary shows up as a hash that the allowlist never blessed.
type AllowlistProbe struct {
	path   string
	cdhash cdhashFunc
	cache  *gocache.Cache
}

const codesignTimeout = 15 * time.Second

// NewAllowlistProbe wires codesign as the live source. Codesign invocations
// are memoized because signature parsing is expensive and a binary's cdhash
// cannot change without the file changing.
func NewAllowlistProbe(cfg model.AllowlistConfig) *AllowlistProbe {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AllowlistProbe{
		path:   cfg.Path,
		cdhash: codesignCdhash,
		cache:  gocache.New(ttl, 2*ttl),
	}
}

func (p *AllowlistProbe) ID() string   { return "signing-allowlist" }
func (p *AllowlistProbe) Name() string { return "Code Signing Allowlist Cross-Check" }

func (p *AllowlistProbe) Metadata() model.ProbeMetadata {
	return model.ProbeMetadata{
		FalseClaim:        "critical binaries on disk are the revisions that were audited",
		Sources:           "static allowlist on disk, live codesign cdhash query",
		AdversaryCost:     "must forge a code signature whose cdhash collides with the audited revision",
		UserMessage:       "A monitored binary's code signature no longer matches its audited version.",
		FalsePositiveRate: "fires on every legitimate OS update until the allowlist is refreshed",
	}
}

// Run loads the allowlist and compares each entry against the live hash. A
// missing or empty allowlist degrades the probe; an unreadable individual
// binary just omits that comparison.
func (p *AllowlistProbe) Run(ctx context.Context) model.ProbeResult {
	started := time.Now()

	expected, err := loadAllowlist(p.path)
	if err != nil || len(expected) == 0 {
		return NewResult(p, started, nil, "")
	}

	var comps []model.SourceComparison
	for binary, want := range expected {
		got, err := p.cachedCdhash(ctx, binary)
		if err != nil {
			continue
		}
		comps = append(comps, model.SourceComparison{
			Label:   "cdhash: " + binary,
			Left:    model.SourceValue{Source: "allowlist", Value: want},
			Right:   model.SourceValue{Source: "codesign", Value: got},
			Matches: strings.EqualFold(want, got),
		})
	}

	return NewResult(p, started, comps, "monitored binary diverges from its audited signature")
}

// cachedCdhash memoizes live signature queries per binary path.
func (p *AllowlistProbe) cachedCdhash(ctx context.Context, binary string) (string, error) {
	if cached, found := p.cache.Get(binary); found {
		return cached.(string), nil
	}
	hash, err := p.cdhash(ctx, binary)
	if err != nil {
		return "", err
	}
	p.cache.Set(binary, hash, gocache.DefaultExpiration)
	return hash, nil
}

// loadAllowlist reads and decodes the YAML allowlist.
func loadAllowlist(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}

	var file allowlistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode allowlist: %w", err)
	}
	return file.Binaries, nil
}

// codesignCdhash extracts the CodeDirectory hash from codesign's verbose
// output. codesign prints details to stderr.
func codesignCdhash(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, codesignTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "codesign", "-dvvv", path).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("run codesign on %s: %w", path, err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if after, ok := strings.CutPrefix(line, "CDHash="); ok {
			return strings.TrimSpace(after), nil
		}
	}
	return "", fmt.Errorf("no CDHash in codesign output for %s", path)
}
