// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"
)

// Resolver abstracts the [*net.Resolver] behavior.
//
// Both [*net.Resolver] and [*DNSResolver] satisfy this interface.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// errNoAddresses is wrapped when a lookup succeeds without any address.
var errNoAddresses = errors.New("no addresses")

// NewResolveFunc returns a new [*ResolveFunc] using [Config.Resolver].
func NewResolveFunc(cfg *Config, logger SLogger) *ResolveFunc {
	return &ResolveFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Resolver:      cfg.Resolver,
		TimeNow:       cfg.TimeNow,
	}
}

// ResolveFunc maps a [*Target] to the endpoint to connect to.
//
// IP address literals bypass the resolver. Otherwise, the first address
// returned by the resolver wins. Failures and empty results wrap
// [ErrAddressResolution].
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ResolveFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewResolveFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewResolveFunc] to the user-provided logger.
	Logger SLogger

	// Resolver is the [Resolver] to use.
	//
	// Set by [NewResolveFunc] from [Config.Resolver].
	Resolver Resolver

	// TimeNow is the function to get the current time.
	//
	// Set by [NewResolveFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[*Target, netip.AddrPort] = &ResolveFunc{}

// Call resolves the target host.
func (op *ResolveFunc) Call(ctx context.Context, target *Target) (netip.AddrPort, error) {
	if addr, err := netip.ParseAddr(target.Host); err == nil {
		return netip.AddrPortFrom(addr.Unmap(), target.Port), nil
	}

	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logResolveStart(target.Host, t0, deadline)
	addrs, err := op.Resolver.LookupNetIP(ctx, "ip", target.Host)
	if err == nil && len(addrs) <= 0 {
		err = errNoAddresses
	}
	op.logResolveDone(target.Host, t0, deadline, addrs, err)

	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %s: %w", ErrAddressResolution, target.Host, err)
	}
	return netip.AddrPortFrom(addrs[0].Unmap(), target.Port), nil
}

func (op *ResolveFunc) logResolveStart(host string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"resolveStart",
		slog.Time("deadline", deadline),
		slog.String("resolveHost", host),
		slog.Time("t", t0),
	)
}

func (op *ResolveFunc) logResolveDone(
	host string, t0 time.Time, deadline time.Time, addrs []netip.Addr, err error) {
	op.Logger.Info(
		"resolveDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.Any("resolveAddrs", addrs),
		slog.String("resolveHost", host),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
