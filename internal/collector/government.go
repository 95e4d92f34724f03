package collector

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/miyazaki-CS/bidding-system/internal/model"
)

const (
	govSourceID    = "government_api"
	govHTTPTimeout = 15 * time.Second
	govMaxAttempts = 3
	govRetryDelay  = 2 * time.Second
)

// GovernmentSource queries the 官公需情報ポータル (kkj.go.jp) search API,
// one request per configured keyword, and normalises the XML results.
type GovernmentSource struct {
	BaseURL  string
	Keywords []string
	client   *http.Client
}

// NewGovernmentSource constructs a source with a shared HTTP client.
// baseURL defaults to the production endpoint when empty.
func NewGovernmentSource(baseURL string, keywords []string) *GovernmentSource {
	if baseURL == "" {
		baseURL = "http://www.kkj.go.jp/api/"
	}
	return &GovernmentSource{
		BaseURL:  baseURL,
		Keywords: keywords,
		client:   &http.Client{Timeout: govHTTPTimeout},
	}
}

func (g *GovernmentSource) Name() string { return govSourceID }

// govResponse mirrors the kkj.go.jp search API XML envelope.
type govResponse struct {
	XMLName xml.Name    `xml:"Search"`
	Results []govResult `xml:"SearchResults>SearchResult"`
	Hits    int         `xml:"SearchResults>SearchHits"`
}

// govResult mirrors a single search result item.
type govResult struct {
	ProjectName         string `xml:"ProjectName"`
	ProjectDescription  string `xml:"ProjectDescription"`
	OrganizationName    string `xml:"OrganizationName"`
	PrefectureName      string `xml:"PrefectureName"`
	CityName            string `xml:"CityName"`
	LgCode              string `xml:"LgCode"`
	Category            string `xml:"Category"`
	Date                string `xml:"Date"`
	CftIssueDate        string `xml:"CftIssueDate"`
	ExternalDocumentURI string `xml:"ExternalDocumentURI"`
	Key                 string `xml:"Key"`
}

// Fetch runs one search per keyword and merges the results. A failing
// keyword query is logged and skipped; Fetch only errors when every query
// failed, so one bad request never hides the rest.
func (g *GovernmentSource) Fetch(ctx context.Context) ([]model.Posting, int, error) {
	var postings []model.Posting
	malformed := 0
	failures := 0
	var lastErr error

	for _, keyword := range g.Keywords {
		if ctx.Err() != nil {
			break
		}

		resp, err := g.search(ctx, keyword)
		if err != nil {
			failures++
			lastErr = err
			log.Printf("[collector] Government API query %q failed: %v", keyword, err)
			continue
		}

		// Hits counts the full result set; the response carries only the
		// first page.
		if resp.Hits > len(resp.Results) {
			log.Printf("[collector] Government API query %q: %d hits, %d returned",
				keyword, resp.Hits, len(resp.Results))
		}

		for _, item := range resp.Results {
			p, ok := g.normalize(item)
			if !ok {
				malformed++
				continue
			}
			postings = append(postings, p)
		}
	}

	if len(g.Keywords) > 0 && failures == len(g.Keywords) {
		return postings, malformed, fmt.Errorf("all %d keyword queries failed: %w", failures, lastErr)
	}
	return postings, malformed, nil
}

// search performs one API request with bounded retries and exponential
// backoff.
func (g *GovernmentSource) search(ctx context.Context, keyword string) (*govResponse, error) {
	params := url.Values{}
	params.Set("Query", keyword)
	reqURL := g.BaseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 1; attempt <= govMaxAttempts; attempt++ {
		resp, err := g.doRequest(ctx, reqURL)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt < govMaxAttempts {
			delay := govRetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", govMaxAttempts, lastErr)
}

func (g *GovernmentSource) doRequest(ctx context.Context, reqURL string) (*govResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kkj.go.jp returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var apiResp govResponse
	if err := xml.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("xml unmarshal: %w", err)
	}
	return &apiResp, nil
}

// normalize converts one XML item to a Posting. Items without a project
// name are malformed and dropped.
func (g *GovernmentSource) normalize(item govResult) (model.Posting, bool) {
	title := strings.TrimSpace(item.ProjectName)
	if title == "" {
		return model.Posting{}, false
	}

	p := model.Posting{
		SourceID:     govSourceID,
		ExternalID:   strings.TrimSpace(item.Key),
		Title:        title,
		Body:         strings.TrimSpace(item.ProjectDescription),
		Organization: strings.TrimSpace(item.OrganizationName),
		Region:       strings.TrimSpace(item.PrefectureName),
		SourceURL:    strings.TrimSpace(item.ExternalDocumentURI),
		Raw: map[string]string{
			"category": item.Category,
			"cityName": item.CityName,
			"lgCode":   item.LgCode,
		},
	}

	if published, ok := parseJPDate(item.Date); ok {
		p.PublishedAt = published
	}
	if deadline, ok := parseJPDate(item.CftIssueDate); ok {
		p.DeadlineAt = &deadline
	}
	return p, true
}

var jpDateFormats = []string{"2006-01-02", "2006/01/02", "2006年01月02日", time.RFC3339}

func parseJPDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, format := range jpDateFormats {
		if ts, err := time.Parse(format, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
