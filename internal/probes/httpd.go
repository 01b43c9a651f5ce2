// Package probes checks that the embedded web server of each monit
// instance accepts connections.
package probes

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/monitoring/internal/model"
)

// Target is one monit httpd to dial.
type Target struct {
	Host string
	Addr string
}

// TargetsFor returns the httpd address of every instance that reported
// one. An httpd bound to all interfaces is reached through the instance's
// hostname.
func TargetsFor(instances []model.MonitInstance) []Target {
	var targets []Target
	for _, inst := range instances {
		if inst.Port <= 0 || inst.Port > 65535 {
			continue
		}
		host := inst.Address
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = inst.LocalHostname
		}
		targets = append(targets, Target{
			Host: inst.LocalHostname,
			Addr: net.JoinHostPort(host, strconv.FormatInt(inst.Port, 10)),
		})
	}
	return targets
}

// HTTPDProbe dials monit httpd endpoints with bounded concurrency.
type HTTPDProbe struct {
	concurrency int
	timeout     time.Duration
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewHTTPDProbe creates a probe.
func NewHTTPDProbe(concurrency int, timeout time.Duration) *HTTPDProbe {
	if concurrency <= 0 {
		concurrency = 8
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := &net.Dialer{}
	return &HTTPDProbe{
		concurrency: concurrency,
		timeout:     timeout,
		dial:        d.DialContext,
	}
}

// Check dials every target and returns one result per target, in order.
func (p *HTTPDProbe) Check(ctx context.Context, targets []Target) []model.HTTPDCheck {
	results := make([]model.HTTPDCheck, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			results[i] = p.check(ctx, t)
			return nil
		})
	}
	g.Wait()

	return results
}

func (p *HTTPDProbe) check(ctx context.Context, t Target) model.HTTPDCheck {
	res := model.HTTPDCheck{Host: t.Host, Addr: t.Addr, CheckedAt: time.Now()}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dial(ctx, "tcp", t.Addr)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	conn.Close()

	res.Reachable = true
	res.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	return res
}
