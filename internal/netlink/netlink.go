// Package netlink brings the station's network link up before the dashboard
// listens.
package netlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cloudpico-station/internal/hardware"
	"cloudpico-station/internal/metrics"
)

var ErrNoAddress = errors.New("no ipv4 address")

// Joiner connects to a network and returns the station's IPv4 address.
type Joiner interface {
	Join(ctx context.Context, ssid, password string) (string, error)
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// NMCLI joins through NetworkManager.
type NMCLI struct {
	Interface string
	run       runFunc
}

func NewNMCLI(iface string) *NMCLI {
	return &NMCLI{Interface: iface, run: runCommand}
}

func (n *NMCLI) Join(ctx context.Context, ssid, password string) (string, error) {
	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	if n.Interface != "" {
		args = append(args, "ifname", n.Interface)
	}
	if _, err := n.run(ctx, "nmcli", args...); err != nil {
		return "", err
	}

	show := []string{"-g", "IP4.ADDRESS", "device", "show"}
	if n.Interface != "" {
		show = append(show, n.Interface)
	}
	out, err := n.run(ctx, "nmcli", show...)
	if err != nil {
		return "", err
	}
	return parseIP4(string(out))
}

// parseIP4 takes the first address from nmcli's terse IP4.ADDRESS output,
// e.g. "192.168.1.23/24 | 10.0.0.2/8".
func parseIP4(out string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		for _, field := range strings.Split(line, "|") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			if i := strings.IndexByte(field, '/'); i >= 0 {
				field = field[:i]
			}
			if ip := net.ParseIP(field); ip != nil && ip.To4() != nil {
				return ip.String(), nil
			}
		}
	}
	return "", ErrNoAddress
}

// Host assumes the link is managed elsewhere and reports the first
// non-loopback IPv4 address.
type Host struct {
	addrs func() ([]net.Addr, error)
}

func NewHost() *Host {
	return &Host{addrs: net.InterfaceAddrs}
}

func (h *Host) Join(context.Context, string, string) (string, error) {
	addrs, err := h.addrs()
	if err != nil {
		return "", fmt.Errorf("list interface addresses: %w", err)
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		if ip4 := ipn.IP.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", ErrNoAddress
}

const blinkEvery = 250 * time.Millisecond

// Retrying retries a Joiner with exponential backoff until it succeeds or ctx
// is done. The LED blinks while joining and stays on once connected.
type Retrying struct {
	joiner  Joiner
	led     hardware.LED
	logger  *slog.Logger
	metrics *metrics.Collector

	newBackOff func() backoff.BackOff
}

func NewRetrying(j Joiner, led hardware.LED, logger *slog.Logger, m *metrics.Collector) *Retrying {
	if led == nil {
		led = hardware.NopLED{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{
		joiner:  j,
		led:     led,
		logger:  logger.With("component", "netlink"),
		metrics: m,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (r *Retrying) Join(ctx context.Context, ssid, password string) (string, error) {
	stop := r.blink(ctx)
	defer stop()

	op := func() (string, error) {
		ip, err := r.joiner.Join(ctx, ssid, password)
		if err != nil {
			r.metrics.JoinAttempts.WithLabelValues("error").Inc()
			return "", err
		}
		r.metrics.JoinAttempts.WithLabelValues("ok").Inc()
		return ip, nil
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("network join failed", "ssid", ssid, "error", err, "retry_in", wait)
	}

	ip, err := backoff.RetryNotifyWithData(op, backoff.WithContext(r.newBackOff(), ctx), notify)
	if err != nil {
		return "", fmt.Errorf("join %q: %w", ssid, err)
	}
	stop()
	if err := r.led.Set(true); err != nil {
		r.logger.Debug("status led", "error", err)
	}
	return ip, nil
}

func (r *Retrying) blink(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(blinkEvery)
		defer t.Stop()
		on := false
		for {
			select {
			case <-ctx.Done():
				_ = r.led.Set(false)
				return
			case <-t.C:
				on = !on
				_ = r.led.Set(on)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
