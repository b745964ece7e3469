// Package rss pulls statements from RSS 2.0 feeds with colly.
package rss

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"NewsSignal/internal/domain/models"
	domrepo "NewsSignal/internal/domain/repository"
	"NewsSignal/pkg/util"
)

const userAgent = "NewsSignal/1.0 (+rss)"

// Provider reads one feed and attributes every item to a fixed source.
type Provider struct {
	name    string
	source  string
	url     string
	timeout time.Duration
}

func NewProvider(name, source, url string, timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Provider{name: name, source: source, url: url, timeout: timeout}
}

// NewReuters and NewFed are the two stock feeds.
func NewReuters(url string) *Provider { return NewProvider("reuters_rss", "Reuters", url, 0) }

func NewFed(url string) *Provider { return NewProvider("fed_rss", "Fed", url, 0) }

var _ domrepo.StatementProvider = (*Provider)(nil)

func (p *Provider) Name() string { return p.name }

// Fetch downloads the feed and maps each <item> to "title. description".
// Items without a parsable pubDate get a zero timestamp (treated as now).
func (p *Provider) Fetch(ctx context.Context) ([]models.StatementInput, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(p.timeout)

	var (
		mu       sync.Mutex
		out      []models.StatementInput
		fetchErr error
	)
	c.OnXML("//channel/item", func(e *colly.XMLElement) {
		title := strings.TrimSpace(e.ChildText("title"))
		desc := strings.TrimSpace(e.ChildText("description"))
		text := title
		if desc != "" {
			text = title + ". " + desc
		}
		if strings.TrimSpace(text) == "" {
			return
		}
		mu.Lock()
		out = append(out, models.StatementInput{
			ID:        strings.TrimSpace(e.ChildText("guid")),
			Source:    p.source,
			Text:      text,
			Timestamp: util.ParseTimeDefault(e.ChildText("pubDate"), time.Time{}),
		})
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
		mu.Unlock()
	})

	if err := c.Visit(p.url); err != nil {
		return nil, fmt.Errorf("%s: visit %s: %w", p.name, p.url, err)
	}
	c.Wait()
	if fetchErr != nil {
		return nil, fmt.Errorf("%s: %w", p.name, fetchErr)
	}
	return out, nil
}
