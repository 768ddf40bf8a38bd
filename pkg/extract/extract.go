package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"webb-archiver/pkg/models"
	"webb-archiver/pkg/utils"
)

const (
	ListingEntrySelector = "div.ad-research-box"
	TitleSelector        = `meta[property="og:title"]`
	DetailSelector       = "div.resource-gallery-detail"
	LinksListSelector    = "div.media-library-links-list"
	ReleaseDateLabel     = "Release Date:"
)

var (
	// aboutImageRegex captures the description between the "About This Image" heading and the
	// instrument credit paragraph that precedes the footer
	aboutImageRegex = regexp.MustCompile(`(?s)<h4>About This Image</h4>\s+(.+)<p><em>(NIRCam was built|MIRI was contributed).+</p>\s*<footer>`)
	tagRegex        = regexp.MustCompile(`<[^<]+?>`)
)

// ExtractTitle returns the HTML-unescaped og:title of a detail page
func ExtractTitle(doc *goquery.Document) (string, error) {
	content, ok := doc.Find(TitleSelector).First().Attr("content")
	if !ok {
		return "", utils.ErrNoTitle
	}
	return html.UnescapeString(content), nil
}

// ExtractAboutImage pulls the image description out of the raw page markup.
// Returns "" when the page has no matching section.
func ExtractAboutImage(raw string) string {
	match := aboutImageRegex.FindStringSubmatch(raw)
	if match == nil {
		return ""
	}
	about := tagRegex.ReplaceAllString(match[1], "")
	about = strings.ReplaceAll(about, "\n", "\n\n")
	return strings.ReplaceAll(about, "&nbsp;", "")
}

// ExtractReleaseDate returns the text of the element wrapping the "Release Date:" label, label included
func ExtractReleaseDate(doc *goquery.Document) string {
	label := doc.Find(DetailSelector).First().Find("strong").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Text() == ReleaseDateLabel
	}).First()
	if label.Length() == 0 {
		return ""
	}
	return label.Parent().Text()
}

// ExtractLinks lists the anchors of the detail page's media links list in document order
func ExtractLinks(doc *goquery.Document) ([]models.Link, error) {
	detail := doc.Find(DetailSelector).First()
	if detail.Length() == 0 {
		return nil, fmt.Errorf("%w: '%s'", utils.ErrContentSelector, DetailSelector)
	}
	list := detail.Find(LinksListSelector).First()
	if list.Length() == 0 {
		return nil, fmt.Errorf("%w: '%s' inside '%s'", utils.ErrContentSelector, LinksListSelector, DetailSelector)
	}

	var links []models.Link
	list.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		links = append(links, models.Link{Label: a.Text(), Href: href})
	})
	return links, nil
}

// ExtractListingEntries returns the detail-page href of every result entry on the listing page.
// Entries without an anchor href are logged and skipped.
func ExtractListingEntries(doc *goquery.Document, log *logrus.Entry) []string {
	var hrefs []string
	doc.Find(ListingEntrySelector).Each(func(i int, entry *goquery.Selection) {
		href, ok := entry.Find("a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			log.WithField("entry_index", i).Warn("Listing entry has no link, skipping")
			return
		}
		hrefs = append(hrefs, href)
	})
	return hrefs
}

// ExtractDetail collects everything archived for a detail page except its title
func ExtractDetail(pageURL string, doc *goquery.Document, raw string) (models.DetailPage, error) {
	links, err := ExtractLinks(doc)
	if err != nil {
		return models.DetailPage{}, fmt.Errorf("links on '%s': %w", pageURL, err)
	}
	facts, err := ParseFactsTable(doc)
	if err != nil {
		return models.DetailPage{}, fmt.Errorf("facts on '%s': %w", pageURL, err)
	}

	return models.DetailPage{
		URL:         pageURL,
		ReleaseDate: ExtractReleaseDate(doc),
		AboutImage:  ExtractAboutImage(raw),
		Links:       links,
		Facts:       facts,
	}, nil
}
