package registry

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The registry is a rendered wiki page. Its instance table is the one under
// div#wiki-body that carries an "Online" header; rows we can't make sense of
// are skipped so minor format drift doesn't take the whole listing down.

var (
	ErrNoWikiBody      = errors.New("registry: no wiki-body div found")
	ErrNoInstanceTable = errors.New("registry: no table containing instances found")
)

const onlineCheckbox = "✅"

// ParsedInstance is one row of the registry listing.
type ParsedInstance struct {
	Domain  string
	URL     string
	Online  bool
	Country string
}

// ParseInstanceList extracts the instance table from the registry page HTML.
// Returns instances keyed by domain; a duplicate domain keeps the last row.
func ParseInstanceList(html string) (map[string]ParsedInstance, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	body := doc.Find(`div#wiki-body`).First()
	if body.Length() == 0 {
		return nil, ErrNoWikiBody
	}
	table := body.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "Online")
	}).First()
	if table.Length() == 0 {
		return nil, ErrNoInstanceTable
	}

	instances := make(map[string]ParsedInstance, 50)
	table.Find("tbody > tr").Each(func(_ int, row *goquery.Selection) {
		inst, ok := parseRow(row)
		if ok {
			instances[inst.Domain] = inst
		}
	})
	return instances, nil
}

// parseRow reads one table row: first cell holds the instance link, the
// remaining cells are [online, ssl-expiry, country, ssl-provider, ...].
func parseRow(row *goquery.Selection) (ParsedInstance, bool) {
	cells := row.Find("td")
	if cells.Length() < 5 {
		return ParsedInstance{}, false
	}
	href, ok := cells.First().Find("a").First().Attr("href")
	if !ok {
		return ParsedInstance{}, false
	}
	rawURL := strings.TrimSuffix(strings.TrimSpace(href), "/")
	dom, ok := DomainOf(rawURL)
	if !ok {
		return ParsedInstance{}, false
	}
	return ParsedInstance{
		Domain:  dom,
		URL:     rawURL,
		Online:  strings.TrimSpace(cells.Eq(1).Text()) == onlineCheckbox,
		Country: strings.TrimSpace(cells.Eq(3).Text()),
	}, true
}

// DomainOf normalizes an instance URL to its bare hostname.
func DomainOf(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return strings.ToLower(u.Hostname()), true
}
