package fetcher

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/alvmarrod/citation-weaver/internal/crawler"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Selectors for the publication page layout
const (
	titleSelector     = "h1.research-detail-header-section__title"
	pubInfoSelector   = "ul.nova-legacy-e-list--type-inline"
	doiSelector       = `a.nova-legacy-e-link--theme-decorated[rel="noopener"]`
	authorSelector    = "div.nova-legacy-v-person-list-item__stack--gutter-s"
	abstractSelector  = "div.nova-legacy-c-card__body--spacing-inherit"
	publicationItem   = "div.nova-legacy-v-publication-item__stack--gutter-m"
	publicationAnchor = "div div a[href]"
)

// parseDocument extracts title, publication info, DOI, authors and abstract.
// Any missing field makes the page malformed.
func parseDocument(pageURL string, page *goquery.Selection) (crawler.Document, error) {
	title := cleanText(page.Find(titleSelector).First().Text())
	if title == "" {
		return crawler.Document{}, fmt.Errorf("%w: missing title", crawler.ErrMalformedDocument)
	}

	pubInfo := page.Find(pubInfoSelector).First()
	if pubInfo.Length() == 0 {
		return crawler.Document{}, fmt.Errorf("%w: missing publication info", crawler.ErrMalformedDocument)
	}
	pubDate := cleanText(pubInfo.Find("li").First().Text())
	dateParts := strings.Fields(pubDate)
	if len(dateParts) != 2 {
		return crawler.Document{}, fmt.Errorf("%w: unexpected publication date %q", crawler.ErrMalformedDocument, pubDate)
	}
	year := dateParts[1]
	journal := cleanText(strings.Replace(cleanText(pubInfo.Text()), pubDate, "", 1))

	doi := cleanText(page.Find(doiSelector).First().Text())
	if doi == "" {
		return crawler.Document{}, fmt.Errorf("%w: missing DOI", crawler.ErrMalformedDocument)
	}

	var authors []string
	page.Find(authorSelector).Each(func(_ int, s *goquery.Selection) {
		name := asciiName(s.Find("a").First().Text())
		if name != "" {
			authors = append(authors, name)
		}
	})

	abstract := cleanText(page.Find(abstractSelector).First().Text())
	if abstract == "" {
		return crawler.Document{}, fmt.Errorf("%w: missing abstract", crawler.ErrMalformedDocument)
	}

	return crawler.Document{
		URL:        pageURL,
		Identifier: doi,
		Title:      title,
		Abstract:   abstract,
		Citation:   formatCitation(authors, year, title, journal, doi),
	}, nil
}

// parseLinks returns the publication links of a references or citations
// listing, resolved against baseURL. Items without a link are skipped.
func parseLinks(baseURL string, page *goquery.Selection) []string {
	var links []string
	page.Find(publicationItem).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find(publicationAnchor).First().Attr("href")
		if !ok {
			return
		}
		if link, ok := crawler.NormalizeLink(baseURL, href); ok {
			links = append(links, link)
		}
	})
	return links
}

// formatCitation renders `A & B, 2020. "Title" Journal. doi:X`
func formatCitation(authors []string, year, title, journal, doi string) string {
	var b strings.Builder
	if len(authors) > 0 {
		b.WriteString(strings.Join(authors, " & "))
		b.WriteString(", ")
	}
	fmt.Fprintf(&b, "%s. \"%s\"", year, title)
	if journal != "" {
		b.WriteString(" " + journal)
	}
	b.WriteString(". doi:" + doi)
	return b.String()
}

// asciiName decomposes name (NFKD), drops everything outside ASCII and
// removes commas
func asciiName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, name)
	if err != nil {
		return ""
	}
	return cleanText(strings.ReplaceAll(out, ",", ""))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
