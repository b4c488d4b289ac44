// scraper/export_link_finder.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ErrExportLinkNotFound is returned when the landing page has no link
// matching the selector.
var ErrExportLinkNotFound = errors.New("export CSV link not found on landing page")

// FindExportURL scrapes pageURL and returns the absolute URL of the first
// anchor matching selector. Relative hrefs are resolved against pageURL.
func FindExportURL(ctx context.Context, client *http.Client, pageURL, selector string) (string, error) {
	if selector == "" {
		selector = `a[href$=".csv"]`
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	zap.S().Infof("Scraper: looking for export link on %s (selector: '%s')", pageURL, selector)

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid landing page URL %s: %w", pageURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build GET request for %s: %w", pageURL, err)
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get URL %s: %w", pageURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get URL %s: status code %d", pageURL, res.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}

	var href string
	doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if v, ok := s.Attr("href"); ok && strings.TrimSpace(v) != "" {
			href = strings.TrimSpace(v)
			return false
		}
		return true
	})
	if href == "" {
		zap.S().Warnf("Scraper: no anchor matching '%s' on %s", selector, pageURL)
		return "", fmt.Errorf("%w: %s (selector '%s')", ErrExportLinkNotFound, pageURL, selector)
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid export link %q on %s: %w", href, pageURL, err)
	}
	resolved := base.ResolveReference(ref).String()
	zap.S().Infof("Scraper: found export link %s", resolved)
	return resolved, nil
}
