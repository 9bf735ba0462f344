package probe

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	errNoProfileCard = errors.New("no profile card found")
	errNoTimeline    = errors.New("no timeline found")
)

// ProfileContent is the health-relevant part of a rendered profile page.
type ProfileContent struct {
	Name  string
	Posts int
}

// parseProfile verifies the markup is a real profile page: a profile card
// with a username and a timeline whose items we can count. Anything else
// (landing pages, error pages, interstitials) fails the parse.
func parseProfile(html string) (ProfileContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ProfileContent{}, err
	}
	card := doc.Find(".profile-card-username").First()
	if card.Length() == 0 {
		return ProfileContent{}, errNoProfileCard
	}
	timeline := doc.Find(".timeline").First()
	if timeline.Length() == 0 {
		return ProfileContent{}, errNoTimeline
	}
	return ProfileContent{
		Name:  strings.TrimSpace(card.Text()),
		Posts: timeline.Find(".timeline-item").Length(),
	}, nil
}
