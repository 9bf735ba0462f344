package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/config"
	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/fetch"
	"github.com/mirrorwatch/mirrorwatch/internal/repo"
)

// Reconciler merges the fetched registry listing with the statically
// configured hosts and diffs the result against the store. Hosts are never
// deleted: a host missing from the listing is disabled so its history stays
// attributable, and it comes back enabled if it reappears.
type Reconciler struct {
	Client            *fetch.Client
	Instances         repo.InstanceStore
	Logger            *zap.Logger
	URL               string
	Static            config.Hosts
	AdditionalCountry string
}

type Summary struct {
	Added    int
	Retained int
	Disabled int
}

func (r *Reconciler) Reconcile(ctx context.Context) (Summary, error) {
	var sum Summary

	_, html, ferr := r.Client.Get(ctx, r.URL, "")
	if ferr != nil {
		return sum, fmt.Errorf("fetch registry: %w", ferr)
	}
	parsed, err := ParseInstanceList(html)
	if err != nil {
		return sum, err
	}

	// Static additional hosts are always part of the fleet, whatever the
	// registry says.
	for _, add := range r.Static.Additional {
		dom, ok := DomainOf(add.URL)
		if !ok {
			r.Logger.Warn("reconcile_bad_additional_host", zap.String("url", add.URL))
			continue
		}
		country := add.Country
		if country == "" {
			country = r.AdditionalCountry
		}
		parsed[dom] = ParsedInstance{Domain: dom, URL: add.URL, Online: true, Country: country}
	}

	existing, err := r.Instances.List(ctx)
	if err != nil {
		return sum, err
	}
	known := make(map[string]domain.Instance, len(existing))
	for _, inst := range existing {
		known[inst.Domain] = inst
	}

	additional := make(map[string]bool, len(r.Static.Additional))
	for _, add := range r.Static.Additional {
		if dom, ok := DomainOf(add.URL); ok {
			additional[dom] = true
		}
	}

	for dom, p := range parsed {
		inst := domain.Instance{
			Domain:       dom,
			URL:          p.URL,
			Country:      p.Country,
			Enabled:      true,
			IsAdditional: additional[dom],
			IsBadHost:    r.Static.IsBad(dom),
		}
		prev, seen := known[dom]
		if err := r.Instances.Upsert(ctx, &inst); err != nil {
			return sum, fmt.Errorf("upsert %s: %w", dom, err)
		}
		switch {
		case !seen:
			sum.Added++
			r.Logger.Info("reconcile_added", zap.String("domain", dom))
		case !prev.Enabled:
			sum.Added++
			r.Logger.Info("reconcile_reenabled", zap.String("domain", dom))
		default:
			sum.Retained++
		}
	}

	for dom, inst := range known {
		if _, ok := parsed[dom]; ok || !inst.Enabled || inst.IsAdditional {
			continue
		}
		if err := r.Instances.SetEnabled(ctx, inst.ID, false); err != nil {
			return sum, fmt.Errorf("disable %s: %w", dom, err)
		}
		sum.Disabled++
		r.Logger.Info("reconcile_disabled", zap.String("domain", dom))
	}

	return sum, nil
}
