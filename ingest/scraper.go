package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/w-h-a/vulnkb/store"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

var severityLabels = map[string]string{
	"C": "Critical",
	"H": "High",
	"M": "Medium",
	"L": "Low",
}

// Scraper walks the advisory site's listing pages and stores what it finds.
// Rows that fail to parse are logged and skipped; storage is create-or-update
// keyed on the advisory id.
type Scraper struct {
	options Options
	store   store.Store
	client  *http.Client
}

// Run scrapes the configured number of pages and returns how many
// vulnerabilities were found and how many were newly stored.
func (s *Scraper) Run(ctx context.Context) (int, int, error) {
	slog.InfoContext(ctx, "starting scraper", "pages", s.options.Pages)

	var all []*store.Vulnerability

	for page := 1; page <= s.options.Pages; page++ {
		body, err := s.FetchPage(ctx, page)
		if err != nil {
			slog.WarnContext(ctx, "no content fetched for page", "page", page, "error", err)
			continue
		}

		vulns, err := s.Parse(body)
		if err != nil {
			slog.WarnContext(ctx, "failed to parse page", "page", page, "error", err)
			continue
		}

		if s.options.FetchDetails {
			for _, v := range vulns {
				s.enrich(ctx, v)
			}
		}

		slog.InfoContext(ctx, "parsed vulnerabilities from page", "page", page, "count", len(vulns))

		all = append(all, vulns...)
	}

	stored, err := s.Store(ctx, all)
	if err != nil {
		return len(all), stored, err
	}

	slog.InfoContext(ctx, "scraping completed", "found", len(all), "stored", stored)

	return len(all), stored, nil
}

// FetchPage retrieves one listing page.
func (s *Scraper) FetchPage(ctx context.Context, page int) (string, error) {
	url := fmt.Sprintf("%s?page=%d", s.options.BaseURL, page)

	slog.InfoContext(ctx, "fetching page", "page", page, "url", url)

	body, err := s.fetch(ctx, url)
	if err != nil {
		return "", err
	}

	return body, nil
}

// Parse extracts vulnerabilities from a listing page's HTML.
func (s *Scraper) Parse(html string) ([]*store.Vulnerability, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var vulns []*store.Vulnerability

	doc.Find(".vulns-table tbody tr").Each(func(_ int, row *goquery.Selection) {
		v := s.parseRow(row)
		if v == nil {
			return
		}
		vulns = append(vulns, v)
	})

	return vulns, nil
}

func (s *Scraper) parseRow(row *goquery.Selection) *store.Vulnerability {
	link := row.Find(`a[href^="/vuln/"]`).First()

	id := uuid.New().String()
	if href, ok := link.Attr("href"); ok {
		parts := strings.Split(href, "/")
		id = parts[len(parts)-1]
	}

	severity := "Unknown"
	if letter := strings.TrimSpace(row.Find(".severity__text").First().Text()); len(letter) > 0 {
		if label, ok := severityLabels[letter]; ok {
			severity = label
		}
	}

	description := "No description available"
	if title := strings.TrimSpace(row.Find(`a[data-snyk-cy-test="vuln table title"]`).First().Text()); len(title) > 0 {
		description = title
	}

	pkg := "Unknown"
	if name := strings.TrimSpace(row.Find(`a[data-snyk-test-package-manager="pip"]`).First().Text()); len(name) > 0 {
		pkg = name
	}

	affectedVersions := strings.TrimSpace(row.Find(".vulns-table__semver").First().Text())

	publishedDate := strings.TrimSpace(row.Find(".table__data-cell--last-column").First().Text())
	if len(publishedDate) == 0 {
		publishedDate = time.Now().Format("2 Jan 2006")
	}

	return &store.Vulnerability{
		Id:               id,
		Package:          pkg,
		Severity:         severity,
		Description:      description,
		PublishedDate:    publishedDate,
		AffectedVersions: affectedVersions,
	}
}

// enrich fetches the advisory's detail page for affected versions and
// remediation advice. Failures leave the record as parsed from the listing.
func (s *Scraper) enrich(ctx context.Context, v *store.Vulnerability) {
	// politeness delay between detail fetches
	time.Sleep(s.options.Delay)

	body, err := s.fetch(ctx, s.detailURL(v.Id))
	if err != nil {
		slog.WarnContext(ctx, "failed to fetch vulnerability details", "id", v.Id, "error", err)
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		slog.WarnContext(ctx, "failed to parse vulnerability details", "id", v.Id, "error", err)
		return
	}

	for _, selector := range []string{".vulnerable-versions", ".affected-versions", ".vulnerability-versions", ".version-info"} {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); len(text) > 0 {
			v.AffectedVersions = text
			break
		}
	}

	for _, selector := range []string{".remediation", ".remediation-info", ".remediation-action", ".fix-info"} {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); len(text) > 0 {
			v.Remediation = text
			break
		}
	}

	if len(v.Remediation) > 0 {
		return
	}

	// fall back to any paragraph that reads like fix advice
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		lower := strings.ToLower(text)
		for _, hint := range []string{"remediate", "fix", "update", "upgrade"} {
			if strings.Contains(lower, hint) {
				v.Remediation = text
				return false
			}
		}
		return true
	})
}

// detailURL maps an advisory id to its detail page. Listing pages live one
// path segment below the advisory pages, so the ecosystem segment of the
// base URL is dropped.
func (s *Scraper) detailURL(id string) string {
	base := strings.TrimSuffix(s.options.BaseURL, "/")
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[:idx]
	}
	return base + "/" + id
}

// Store creates new records and updates existing ones. It returns the number
// of newly created records.
func (s *Scraper) Store(ctx context.Context, vulns []*store.Vulnerability) (int, error) {
	if len(vulns) == 0 {
		slog.WarnContext(ctx, "no vulnerabilities to store")
		return 0, nil
	}

	stored := 0

	for _, v := range vulns {
		err := s.store.Create(ctx, v)
		if err == nil {
			stored++
			continue
		}

		if errors.Is(err, store.ErrDuplicate) {
			if err := s.store.Update(ctx, v); err != nil {
				slog.WarnContext(ctx, "failed to update vulnerability", "id", v.Id, "error", err)
			}
			continue
		}

		slog.WarnContext(ctx, "failed to store vulnerability", "id", v.Id, "error", err)
	}

	slog.InfoContext(ctx, "stored new vulnerabilities", "count", stored)

	return stored, nil
}

func (s *Scraper) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("User-Agent", userAgent)

	rsp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", rsp.StatusCode, url)
	}

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

func NewScraper(s store.Store, opts ...Option) *Scraper {
	options := NewOptions(opts...)

	return &Scraper{
		options: options,
		store:   s,
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}
