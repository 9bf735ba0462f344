package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/domain"
	"github.com/mirrorwatch/mirrorwatch/internal/fetch"
)

const (
	profileHTML = `<html><body>
<div class="profile-card"><a class="profile-card-username">@jack</a></div>
<div class="timeline">
<div class="timeline-item">1</div><div class="timeline-item">2</div>
<div class="timeline-item">3</div><div class="timeline-item">4</div>
<div class="timeline-item">5</div><div class="timeline-item">6</div>
</div></body></html>`

	rssBody = `<?xml version="1.0"?><rss xmlns:atom="http://www.w3.org/2005/Atom" version="2.0"></rss>`
)

func aboutHTML(commit string) string {
	return fmt.Sprintf(`<html><body>
<p>Version <a href="https://git.example/upstream/commit/%s">2026.01.10-%s</a></p>
</body></html>`, commit, commit)
}

type fakeClassifier struct {
	head   string
	status domain.VersionStatus
	lastIn string
}

func (f *fakeClassifier) Head() string { return f.head }
func (f *fakeClassifier) Classify(versionURL string) domain.VersionStatus {
	f.lastIn = versionURL
	return f.status
}

func testProber(timeout time.Duration, oracle *fakeClassifier) *Prober {
	return &Prober{
		Client: fetch.New(timeout, "https://status.example"),
		Oracle: oracle,
		Logger: zap.NewNop(),
		Cfg: Config{
			ProfilePath:     "/jack",
			RSSPath:         "/jack/rss",
			AboutPath:       "/about",
			ProfileName:     "@jack",
			ProfileMinPosts: 5,
			RSSContent:      regexp.MustCompile(`(?i)<rss xmlns:atom`),
		},
	}
}

func TestProbe_HealthyInstance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jack":
			w.Write([]byte(profileHTML))
		case "/jack/rss":
			w.Write([]byte(rssBody))
		case "/about":
			w.Write([]byte(aboutHTML("abc1234")))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	oracle := &fakeClassifier{head: "abc1234full", status: domain.VersionLatest}
	p := testProber(2*time.Second, oracle)
	out := p.Probe(context.Background(), domain.Instance{ID: 1, Domain: "x", URL: srv.URL})

	if out.Error != nil {
		t.Fatalf("unexpected error record: %+v", out.Error)
	}
	r := out.Result
	if !r.Healthy {
		t.Fatalf("want healthy, got %+v", r)
	}
	if r.ResponseMS == nil || *r.ResponseMS < 0 {
		t.Fatalf("want response time, got %v", r.ResponseMS)
	}
	if r.HTTPStatus == nil || *r.HTTPStatus != 200 {
		t.Fatalf("want status 200, got %v", r.HTTPStatus)
	}
	if !r.RSS {
		t.Fatal("want RSS available")
	}
	if r.Version == nil || *r.Version != "2026.01.10-abc1234" {
		t.Fatalf("version: got %v", r.Version)
	}
	if !r.IsUpstream || !r.IsLatestVersion {
		t.Fatalf("want latest upstream, got %+v", r)
	}
	if oracle.lastIn != "https://git.example/upstream/commit/abc1234" {
		t.Fatalf("classifier got %q", oracle.lastIn)
	}
}

func TestProbe_UnreachableHost(t *testing.T) {
	p := testProber(200*time.Millisecond, &fakeClassifier{})
	out := p.Probe(context.Background(), domain.Instance{ID: 1, Domain: "x", URL: "http://127.0.0.1:1"})

	if out.Result.Healthy {
		t.Fatal("unreachable host must be unhealthy")
	}
	if out.Result.ResponseMS != nil {
		t.Fatalf("no response means no response time, got %v", *out.Result.ResponseMS)
	}
	if out.Error == nil || out.Error.Category != domain.ErrTransientNetwork {
		t.Fatalf("want transient_network record, got %+v", out.Error)
	}
}

func TestProbe_ProfileMismatch(t *testing.T) {
	wrong := `<html><body>
<div class="profile-card"><a class="profile-card-username">@impostor</a></div>
<div class="timeline"><div class="timeline-item">1</div></div>
</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/jack" {
			w.Write([]byte(wrong))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := testProber(2*time.Second, &fakeClassifier{})
	out := p.Probe(context.Background(), domain.Instance{ID: 1, Domain: "x", URL: srv.URL})

	if out.Result.Healthy {
		t.Fatal("mismatched profile must be unhealthy")
	}
	if out.Result.ResponseMS == nil {
		t.Fatal("host answered, response time must be recorded")
	}
	if out.Error == nil || out.Error.Category != domain.ErrContentMismatch {
		t.Fatalf("want content_mismatch record, got %+v", out.Error)
	}
	if out.Error.HTTPBody == nil {
		t.Fatal("mismatch record must carry the body for debugging")
	}
}

func TestProbe_NotFoundKeepsNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := testProber(2*time.Second, &fakeClassifier{})
	out := p.Probe(context.Background(), domain.Instance{ID: 1, Domain: "x", URL: srv.URL})

	if out.Result.Healthy {
		t.Fatal("404 must be unhealthy")
	}
	if out.Result.HTTPStatus == nil || *out.Result.HTTPStatus != 404 {
		t.Fatalf("want status 404, got %v", out.Result.HTTPStatus)
	}
	if out.Error == nil || out.Error.Category != domain.ErrKnownBadResponse {
		t.Fatalf("want known_bad_response record, got %+v", out.Error)
	}
	if out.Error.HTTPBody != nil {
		t.Fatal("known-bad responses must not keep the body")
	}
}

func TestProbe_BadURL(t *testing.T) {
	p := testProber(time.Second, &fakeClassifier{})
	out := p.Probe(context.Background(), domain.Instance{ID: 1, Domain: "x", URL: "::not-a-url"})
	if out.Error == nil || out.Error.Category != domain.ErrParse {
		t.Fatalf("want parse_error record, got %+v", out.Error)
	}
}

func TestParseProfile(t *testing.T) {
	got, err := parseProfile(profileHTML)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "@jack" || got.Posts != 6 {
		t.Fatalf("parseProfile: %+v", got)
	}

	if _, err := parseProfile("<html><body>interstitial</body></html>"); err == nil {
		t.Fatal("non-profile markup must fail the parse")
	}
}

func TestParseAbout(t *testing.T) {
	got, err := parseAbout(aboutHTML("abc1234"))
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "2026.01.10-abc1234" {
		t.Fatalf("version text: %q", got.Version)
	}
	if got.URL != "https://git.example/upstream/commit/abc1234" {
		t.Fatalf("version url: %q", got.URL)
	}

	if _, err := parseAbout("<html><body><p>no version here</p></body></html>"); err == nil {
		t.Fatal("page without a version paragraph must fail")
	}
	bad := `<html><body><p>Version <a href="/x">???</a></p></body></html>`
	if _, err := parseAbout(bad); err == nil {
		t.Fatal("malformed version text must fail")
	}
}
