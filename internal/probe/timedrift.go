package probe

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"dissonance/internal/model"
)

// Drift tolerances are deliberately asymmetric: the system clock is allowed
// more slack against NTP than two NTP servers are against each other. These
// encode tuned false-positive tolerances and must not be unified.
const (
	systemNTPTolerance = 5 * time.Second
	ntpNTPTolerance    = 2 * time.Second
)

// ntpQueryFunc reads the current time from one NTP server.
type ntpQueryFunc func(ctx context.Context, server string) (time.Time, error)

// TimeDriftProbe compares the system clock against two independent NTP
// servers. A system clock pulled away from consensus time can hide
// certificate expiry, log tampering, or replay windows.
type TimeDriftProbe struct {
	servers []string
	now     func() time.Time
	query   ntpQueryFunc
}

// NewTimeDriftProbe wires the real SNTP source with the configured socket
// deadline.
func NewTimeDriftProbe(cfg model.TimeConfig) *TimeDriftProbe {
	return &TimeDriftProbe{
		servers: cfg.Servers,
		now:     time.Now,
		query: func(ctx context.Context, server string) (time.Time, error) {
			return sntpTime(ctx, server, cfg.Timeout)
		},
	}
}

func (p *TimeDriftProbe) ID() string   { return "time-drift" }
func (p *TimeDriftProbe) Name() string { return "Clock Drift Cross-Check" }

func (p *TimeDriftProbe) Metadata() model.ProbeMetadata {
	return model.ProbeMetadata{
		FalseClaim:        "the system clock tracks real time",
		Sources:           "system clock, two independent SNTP servers",
		AdversaryCost:     "must intercept UDP NTP traffic to multiple servers or control the network path",
		UserMessage:       "Your system clock disagrees with network time sources.",
		FalsePositiveRate: "low; a 5 second tolerance absorbs normal network jitter",
	}
}

// Run queries each server and compares within the drift tolerances.
func (p *TimeDriftProbe) Run(ctx context.Context) model.ProbeResult {
	started := time.Now()

	system := p.now()

	type reading struct {
		server string
		at     time.Time
	}
	var readings []reading
	for _, server := range p.servers {
		t, err := p.query(ctx, server)
		if err != nil {
			continue
		}
		readings = append(readings, reading{server: server, at: t})
	}

	var comps []model.SourceComparison
	for _, r := range readings {
		comps = append(comps, driftComparison(
			"system vs "+r.server,
			model.SourceValue{Source: "system-clock", Value: system.UTC().Format(time.RFC3339)},
			model.SourceValue{Source: "ntp:" + r.server, Value: r.at.UTC().Format(time.RFC3339)},
			system.Sub(r.at), systemNTPTolerance,
		))
	}
	for i := 0; i < len(readings); i++ {
		for j := i + 1; j < len(readings); j++ {
			comps = append(comps, driftComparison(
				readings[i].server+" vs "+readings[j].server,
				model.SourceValue{Source: "ntp:" + readings[i].server, Value: readings[i].at.UTC().Format(time.RFC3339)},
				model.SourceValue{Source: "ntp:" + readings[j].server, Value: readings[j].at.UTC().Format(time.RFC3339)},
				readings[i].at.Sub(readings[j].at), ntpNTPTolerance,
			))
		}
	}

	return NewResult(p, started, comps, "system clock out of step with network time")
}

// driftComparison treats two readings as equal when their offset is within
// the tolerance window, not byte-for-byte.
func driftComparison(label string, left, right model.SourceValue, offset, tolerance time.Duration) model.SourceComparison {
	if offset < 0 {
		offset = -offset
	}
	return model.SourceComparison{
		Label:   label,
		Left:    left,
		Right:   right,
		Matches: offset <= tolerance,
	}
}

// ntpEpochOffset is the difference between the NTP epoch (1900) and the
// Unix epoch (1970) in seconds.
const ntpEpochOffset = 2208988800

// sntpTime performs a minimal SNTP exchange over UDP with an explicit
// socket deadline and returns the server's transmit timestamp.
func sntpTime(ctx context.Context, server string, timeout time.Duration) (time.Time, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", server)
	if err != nil {
		return time.Time{}, fmt.Errorf("dial %s: %w", server, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return time.Time{}, fmt.Errorf("set deadline: %w", err)
	}

	// 48-byte SNTP request: LI=0, VN=4, Mode=3 (client).
	req := make([]byte, 48)
	req[0] = 0x23

	if _, err := conn.Write(req); err != nil {
		return time.Time{}, fmt.Errorf("send request: %w", err)
	}

	resp := make([]byte, 48)
	if _, err := conn.Read(resp); err != nil {
		return time.Time{}, fmt.Errorf("read response: %w", err)
	}

	// Transmit timestamp lives at bytes 40-47: 32.32 fixed point seconds
	// since the NTP epoch.
	secs := binary.BigEndian.Uint32(resp[40:44])
	frac := binary.BigEndian.Uint32(resp[44:48])
	if secs == 0 {
		return time.Time{}, fmt.Errorf("empty transmit timestamp from %s", server)
	}

	nanos := int64(secs-ntpEpochOffset)*int64(time.Second) +
		int64(uint64(frac)*uint64(time.Second)>>32)
	return time.Unix(0, nanos).UTC(), nil
}
