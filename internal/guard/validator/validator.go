// Package validator decides whether an externally supplied URL is safe to
// dereference from inside the trusted network.
//
// Validation runs in two layers. The synchronous layer parses and
// canonicalizes the URL, gates the scheme, applies hostname rules, and
// classifies literal IP addresses -- no I/O. The asynchronous layer resolves
// the hostname and classifies every returned address, which is what defeats
// DNS rebinding. Every ambiguous or erroring condition blocks; "safe" is
// produced only when all checks have passed.
package validator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stacklume/fetchguard/internal/common/configtypes"
	"github.com/stacklume/fetchguard/internal/guard/hostname"
	"github.com/stacklume/fetchguard/internal/guard/ranges"
	"github.com/stacklume/fetchguard/internal/guard/resolver"
	"github.com/stacklume/fetchguard/internal/guard/urlnorm"
)

// DefaultDNSTimeout bounds the resolution step when config does not set one
const DefaultDNSTimeout = 3 * time.Second

// allowedSchemes is the protocol gate. Everything not listed here is
// rejected before any hostname or network work.
var allowedSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
}

// DNSObserver receives the elapsed time of every DNS resolution attempt,
// successful or not. Nil disables observation.
type DNSObserver func(time.Duration)

// Validator is the composed two-layer pipeline. All fields are immutable
// after construction; concurrent calls share no mutable state.
type Validator struct {
	table       *ranges.Table
	hostnames   *hostname.Matcher
	resolver    resolver.Resolver
	dnsTimeout  time.Duration
	dnsObserver DNSObserver
	logger      *zap.Logger
}

// New builds a Validator from config. Extra blocked ranges and hostnames
// from the operator extend the built-in tables.
func New(cfg configtypes.ValidatorConfig, res resolver.Resolver, dnsObserver DNSObserver, logger *zap.Logger) (*Validator, error) {
	extra := make([]ranges.Range, 0, len(cfg.ExtraBlockedRanges))
	for _, br := range cfg.ExtraBlockedRanges {
		r, err := ranges.ParseExtraRange(br.CIDR, br.Classification)
		if err != nil {
			return nil, fmt.Errorf("invalid extra blocked range: %w", err)
		}
		extra = append(extra, r)
	}

	table, err := ranges.NewTable(extra)
	if err != nil {
		return nil, err
	}

	dnsTimeout := cfg.DNSTimeout.ToDuration()
	if dnsTimeout <= 0 {
		dnsTimeout = DefaultDNSTimeout
	}

	return &Validator{
		table:       table,
		hostnames:   hostname.NewMatcher(cfg.ExtraBlockedHostnames),
		resolver:    res,
		dnsTimeout:  dnsTimeout,
		dnsObserver: dnsObserver,
		logger:      logger,
	}, nil
}

// ValidateSync runs the synchronous layer only: parse, protocol gate,
// hostname rules, literal-IP classification. No I/O, pure function of the
// static tables and the input. Intended as a cheap pre-filter; a passing
// result here still needs Validate before any fetch, unless the hostname was
// a literal IP (which needs no resolution).
func (v *Validator) ValidateSync(rawURL string) Decision {
	dec, _, _ := v.validateSync(rawURL)
	return dec
}

// validateSync is the shared layer-1 implementation. literalIP reports that
// the hostname was an IP literal and the table already cleared it, so the
// async layer can skip DNS entirely.
func (v *Validator) validateSync(rawURL string) (dec Decision, u *urlnorm.NormalizedURL, literalIP bool) {
	u, err := urlnorm.Parse(rawURL)
	if err != nil {
		// A recognizable but disallowed scheme beats the parse error:
		// file:///etc/passwd is a protocol violation, not line noise
		if scheme, ok := urlnorm.SchemeOf(rawURL); ok {
			if _, allowed := allowedSchemes[scheme]; !allowed {
				return blocked(ReasonDisallowedProtocol, fmt.Sprintf("scheme %q is not allowed", scheme)), nil, false
			}
		}
		return blocked(ReasonMalformedURL, err.Error()), nil, false
	}

	if _, ok := allowedSchemes[u.Scheme]; !ok {
		return blocked(ReasonDisallowedProtocol, fmt.Sprintf("scheme %q is not allowed", u.Scheme)), nil, false
	}

	if rule, found := v.hostnames.Match(u.Hostname); found {
		return blocked(ReasonBlockedHostnamePattern, fmt.Sprintf("hostname matches blocked pattern %s", rule)), nil, false
	}

	// A literal IP needs no resolution: classify it right now
	if ip, ok := u.IsIPLiteral(); ok {
		if class, match := v.table.Classify(ip); match {
			return blocked(ReasonPrivateOrReservedIP, fmt.Sprintf("%s (%s)", class, ip)), nil, false
		}
		return safe(u.String()), u, true
	}

	return safe(u.String()), u, false
}

// Validate runs the full two-layer validation. The DNS step is bounded by
// the configured timeout and honors cancellation from ctx; a cancelled or
// timed-out lookup blocks, it never passes.
func (v *Validator) Validate(ctx context.Context, rawURL string) (dec Decision) {
	// Absolute fail-closed: an unexpected internal fault must block,
	// never escape as a panic that a caller might swallow mid-fetch.
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("Validator panicked", zap.Any("panic", r), zap.String("url", rawURL))
			dec = blocked(ReasonInternalError, "unexpected validation failure")
		}
	}()

	dec, u, literalIP := v.validateSync(rawURL)
	if !dec.Safe || literalIP {
		return dec
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.dnsTimeout)
	defer cancel()

	start := time.Now()
	ips, err := v.resolver.LookupIP(lookupCtx, u.Hostname)
	elapsed := time.Since(start)
	if v.dnsObserver != nil {
		v.dnsObserver(elapsed)
	}
	if err != nil {
		v.logger.Debug("DNS resolution failed",
			zap.String("host", u.Hostname),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return blocked(ReasonDNSResolutionFailure, fmt.Sprintf("could not resolve %s", u.Hostname))
	}
	if len(ips) == 0 {
		return blocked(ReasonDNSResolutionFailure, fmt.Sprintf("no addresses for %s", u.Hostname))
	}

	// Any-match semantics: a single internal address in the answer is
	// enough to exploit rebinding, so a single match blocks the call
	for _, ip := range ips {
		if class, match := v.table.Classify(ip); match {
			return blocked(ReasonHostnameResolvesToPrivateIP,
				fmt.Sprintf("%s resolves to %s (%s)", u.Hostname, ip, class))
		}
	}

	return safe(u.String())
}
