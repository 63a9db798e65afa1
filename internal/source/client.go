package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"pagemirror/internal/config"
	"pagemirror/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client talks to the workspace-documents API. All calls are rate limited so
// a published-catalog sweep cannot trip the vendor's quota.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewClient(cfg config.SourceConfig, logger *zerolog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout()}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = cfg.Timeout()
	}

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "source").Logger()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		log:     log,
	}
}

// FetchPage retrieves one page with its content blocks.
func (c *Client) FetchPage(ctx context.Context, pageID string) (*models.PageContent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Op: "fetch_page", Transient: true, Err: err}
	}

	endpoint := fmt.Sprintf("%s/pages/%s", c.baseURL, url.PathEscape(pageID))
	body, err := c.get(ctx, "fetch_page", endpoint)
	if err != nil {
		return nil, err
	}

	var content models.PageContent
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, &Error{Op: "fetch_page", Transient: false, Err: fmt.Errorf("decode page: %w", err)}
	}
	if content.ExternalID == "" {
		content.ExternalID = pageID
	}

	return &content, nil
}

// ListPublishedPageIDs returns the ids of every published page in the
// workspace, following pagination cursors.
func (c *Client) ListPublishedPageIDs(ctx context.Context) ([]string, error) {
	var ids []string
	cursor := ""

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Op: "list_published", Transient: true, Err: err}
		}

		endpoint := c.baseURL + "/pages?status=published"
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}

		body, err := c.get(ctx, "list_published", endpoint)
		if err != nil {
			return nil, err
		}

		var page struct {
			Results []struct {
				ID string `json:"id"`
			} `json:"results"`
			NextCursor string `json:"next_cursor"`
			HasMore    bool   `json:"has_more"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &Error{Op: "list_published", Transient: false, Err: fmt.Errorf("decode listing: %w", err)}
		}

		for _, r := range page.Results {
			ids = append(ids, r.ID)
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	c.log.Debug().Int("count", len(ids)).Msg("listed published pages")
	return ids, nil
}

func (c *Client) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Op: op, Transient: false, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// network failures and timeouts are retryable
		return nil, &Error{Op: op, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &Error{Op: op, Transient: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Transient:  retryableStatus(resp.StatusCode),
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	return body, nil
}

func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout {
		return true
	}
	return code >= 500
}
