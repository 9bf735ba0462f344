package probe

import (
	"errors"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	errNoVersionElement = errors.New("no version paragraph found")
	errNoCommitLink     = errors.New("no commit link found")
	errBadVersionFormat = errors.New("version text has unexpected format")
)

// a release tag like 2023.07.22-72d8f35, or a bare commit hash
var versionRe = regexp.MustCompile(`(?i)^((\d+\.\d+\.\d+)|[a-zA-Z0-9]{7,})`)

// AboutVersion is the version link from an instance's about page.
type AboutVersion struct {
	Version string
	URL     string
}

// parseAbout finds the paragraph mentioning "Version" and takes its first
// link: text is the human-readable version, href points at the commit.
func parseAbout(html string) (AboutVersion, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return AboutVersion{}, err
	}
	para := doc.Find("p").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "Version")
	}).First()
	if para.Length() == 0 {
		return AboutVersion{}, errNoVersionElement
	}
	link := para.Find("a").First()
	href, ok := link.Attr("href")
	if link.Length() == 0 || !ok {
		return AboutVersion{}, errNoCommitLink
	}
	text := strings.TrimSpace(link.Text())
	if !versionRe.MatchString(text) {
		return AboutVersion{}, errBadVersionFormat
	}
	return AboutVersion{Version: text, URL: strings.TrimSpace(href)}, nil
}
