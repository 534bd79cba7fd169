package dns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/miekg/dns"
)

const (
	readyInitialInterval = 50 * time.Millisecond
	readyMaxInterval     = 1 * time.Second
	readyMaxElapsed      = 15 * time.Second
	probeTimeout         = 500 * time.Millisecond
)

var errExited = errors.New("coredns exited before answering queries")

// WaitReady queries addr until any DNS response arrives. exited, when
// non-nil, aborts the wait once it is closed.
func WaitReady(ctx context.Context, addr string, exited <-chan struct{}) error {
	return waitReady(ctx, addr, exited, readyMaxElapsed)
}

func waitReady(ctx context.Context, addr string, exited <-chan struct{}, maxElapsed time.Duration) error {
	client := &dns.Client{Net: "udp", Timeout: probeTimeout}
	msg := new(dns.Msg)
	msg.SetQuestion(".", dns.TypeNS)

	check := func() error {
		select {
		case <-exited:
			return backoff.Permanent(errExited)
		default:
		}
		_, _, err := client.ExchangeContext(ctx, msg, addr)
		return err
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(readyInitialInterval),
		backoff.WithMaxInterval(readyMaxInterval),
		backoff.WithMaxElapsedTime(maxElapsed),
	)
	if err := backoff.Retry(check, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("wait ready: coredns not answering on %s after %s: %w", addr, maxElapsed, err)
	}
	return nil
}
