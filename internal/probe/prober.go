package probe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/fetch"
	"github.com/mirrorwatch/mirrorwatch/internal/upstream"
)

const maxErrorBody = 4 << 10

// Config holds the check paths and expectations shared by all probes.
type Config struct {
	ProfilePath     string
	RSSPath         string
	AboutPath       string
	ProfileName     string
	ProfileMinPosts int
	RSSContent      *regexp.Regexp
}

// Outcome is the complete result of probing one instance. Error is nil for
// healthy probes; it is a record, not a Go error — a probe never fails
// outward, whatever the host does.
type Outcome struct {
	Result domain.HealthCheckResult
	Error  *domain.ErrorRecord
}

// Prober runs the four sub-checks (profile, RSS, about/version,
// connectivity) against one instance. The checks are independent: any of
// them failing doesn't stop the others, and only the profile check decides
// overall health.
type Prober struct {
	Client   *fetch.Client
	Oracle   upstream.Classifier
	Resolver *net.Resolver
	Logger   *zap.Logger
	Cfg      Config
}

func (p *Prober) Probe(ctx context.Context, inst domain.Instance) Outcome {
	now := time.Now().UTC()
	res := domain.HealthCheckResult{
		InstanceID: inst.ID,
		CheckedAt:  now,
	}

	base, err := url.Parse(inst.URL)
	if err != nil || base.Hostname() == "" {
		return Outcome{Result: res, Error: &domain.ErrorRecord{
			InstanceID: inst.ID,
			At:         now,
			Category:   domain.ErrParse,
			Message:    "instance URL is not valid",
		}}
	}

	outcome := Outcome{Result: res}
	outcome.Error = p.checkProfile(ctx, base, &outcome.Result)
	p.checkRSS(ctx, base, &outcome.Result)
	p.checkAbout(ctx, base, &outcome.Result)
	outcome.Result.Connectivity = classifyConnectivity(ctx, p.Resolver, base.Hostname())
	return outcome
}

// checkProfile fetches the known public profile and decides overall health.
// The elapsed time of this request is the recorded response time; it is left
// nil when the host never answered at all.
func (p *Prober) checkProfile(ctx context.Context, base *url.URL, res *domain.HealthCheckResult) *domain.ErrorRecord {
	u := withPath(base, p.Cfg.ProfilePath)
	start := time.Now()
	code, body, ferr := p.Client.Get(ctx, u, "")
	elapsed := time.Since(start).Milliseconds()

	if ferr != nil {
		if ferr.Status != 0 {
			res.ResponseMS = &elapsed
			res.HTTPStatus = &ferr.Status
		}
		return ferr.Record(res.InstanceID, res.CheckedAt)
	}
	res.ResponseMS = &elapsed
	res.HTTPStatus = &code

	content, err := parseProfile(body)
	if err != nil {
		return p.contentError(res, body, "no profile page: "+err.Error())
	}
	if content.Name != p.Cfg.ProfileName || content.Posts < p.Cfg.ProfileMinPosts {
		return p.contentError(res, body, fmt.Sprintf(
			"profile content mismatch: name %q, %d posts", content.Name, content.Posts))
	}
	res.Healthy = true
	return nil
}

func (p *Prober) contentError(res *domain.HealthCheckResult, body, msg string) *domain.ErrorRecord {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	rec := &domain.ErrorRecord{
		InstanceID: res.InstanceID,
		At:         res.CheckedAt,
		Category:   domain.ErrContentMismatch,
		Message:    msg,
		HTTPStatus: res.HTTPStatus,
	}
	if body != "" {
		rec.HTTPBody = &body
	}
	return rec
}

// checkRSS marks the feed available when the configured marker matches.
// Informational only; a 404 here usually just means feeds are disabled.
func (p *Prober) checkRSS(ctx context.Context, base *url.URL, res *domain.HealthCheckResult) {
	_, body, ferr := p.Client.Get(ctx, withPath(base, p.Cfg.RSSPath), "")
	if ferr != nil {
		return
	}
	res.RSS = p.Cfg.RSSContent.MatchString(body)
}

// checkAbout extracts the reported version and classifies it against the
// oracle. A fork or unresolvable commit forces IsLatestVersion=false no
// matter what the version string says.
func (p *Prober) checkAbout(ctx context.Context, base *url.URL, res *domain.HealthCheckResult) {
	_, body, ferr := p.Client.Get(ctx, withPath(base, p.Cfg.AboutPath), "")
	if ferr != nil {
		return
	}
	about, err := parseAbout(body)
	if err != nil {
		p.Logger.Debug("about_parse_failed",
			zap.String("host", base.Hostname()),
			zap.Error(err))
		return
	}
	res.Version = &about.Version
	res.VersionURL = &about.URL
	status := p.Oracle.Classify(about.URL)
	res.IsUpstream = status.Upstream()
	res.IsLatestVersion = status == domain.VersionLatest
}

func withPath(base *url.URL, path string) string {
	u := *base
	u.Path = path
	u.RawQuery = ""
	return u.String()
}
