package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"igcrawler/pkg/config"
	apierrors "igcrawler/pkg/errors"
	"igcrawler/pkg/logger"
	"igcrawler/pkg/models"
)

const (
	defaultBaseURL = "https://www.instagram.com"
	graphQLPath    = "/graphql/query"

	// responseLimit bounds how much of a response body is read. GraphQL
	// payloads are small; script bundles can run to a few megabytes.
	responseLimit = 8 << 20
)

// Client issues authenticated requests against the profile API. All calls
// are synchronous; pacing between calls is the caller's responsibility.
type Client struct {
	httpClient *http.Client
	baseURL    string
	docIDs     DocIDs
	pageSize   int

	sessionID string
	csrfToken string
	fbDtsg    string
	fbLsd     string
	userAgent string
	appID     string

	logger logger.Logger
}

// NewClient creates a client from the session configuration.
func NewClient(cfg *config.InstagramConfig, docIDs DocIDs, pageSize int, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		docIDs:     docIDs,
		pageSize:   pageSize,
		sessionID:  cfg.SessionID,
		csrfToken:  cfg.CSRFToken,
		fbDtsg:     cfg.FBDtsg,
		fbLsd:      cfg.FBLsd,
		userAgent:  cfg.UserAgent,
		appID:      cfg.AppID,
		logger:     log,
	}
}

// SetBaseURL overrides the API host. Used by tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimSuffix(u, "/")
}

// SetDocIDs replaces the query identifiers, typically after a registry
// refresh.
func (c *Client) SetDocIDs(d DocIDs) {
	c.docIDs = d
}

// setHeaders applies the session cookie and the fixed request headers.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-IG-App-ID", c.appID)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
	}
	if c.fbLsd != "" {
		req.Header.Set("X-FB-LSD", c.fbLsd)
	}

	var cookies []string
	if c.sessionID != "" {
		cookies = append(cookies, "sessionid="+c.sessionID)
	}
	if c.csrfToken != "" {
		cookies = append(cookies, "csrftoken="+c.csrfToken)
	}
	if len(cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(cookies, "; "))
	}
}

// doRequest performs the request and returns the body and status. Transport
// failures map to network errors with code 0; non-200 statuses map through
// the error taxonomy.
func (c *Client) doRequest(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, apierrors.New(apierrors.ErrorTypeNetwork,
			fmt.Sprintf("request failed: %v", err), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return nil, resp.StatusCode, apierrors.New(apierrors.ErrorTypeNetwork,
			fmt.Sprintf("failed to read response body: %v", err), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return body, resp.StatusCode, statusError(resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

// postQuery builds and executes one GraphQL query.
func (c *Client) postQuery(ctx context.Context, kind QueryKind, p queryParams) ([]byte, int, error) {
	docID := c.docIDs.ForKind(kind)
	if docID == "" {
		return nil, 0, apierrors.New(apierrors.ErrorTypeUnknown,
			fmt.Sprintf("no doc id configured for %s query", kind), 0)
	}
	return c.postQueryWithDocID(ctx, kind, docID, p)
}

func (c *Client) postQueryWithDocID(ctx context.Context, kind QueryKind, docID string, p queryParams) ([]byte, int, error) {
	body, err := buildQueryBody(kind, docID, c.fbDtsg, c.fbLsd, p)
	if err != nil {
		return nil, 0, apierrors.New(apierrors.ErrorTypeUnknown, err.Error(), 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+graphQLPath, strings.NewReader(body.Encode()))
	if err != nil {
		return nil, 0, apierrors.New(apierrors.ErrorTypeUnknown,
			fmt.Sprintf("failed to create request: %v", err), 0)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.DebugWithFields("graphql query", map[string]interface{}{
		"kind":   string(kind),
		"doc_id": docID,
	})
	return c.doRequest(req)
}

// ResolveUserID looks up the opaque user id for a handle via the web
// profile endpoint. A missing user in a 200 response means the handle does
// not exist.
func (c *Client) ResolveUserID(ctx context.Context, handle string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/users/web_profile_info/?username=%s",
		c.baseURL, url.QueryEscape(handle))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", apierrors.New(apierrors.ErrorTypeUnknown,
			fmt.Sprintf("failed to create request: %v", err), 0)
	}
	c.setHeaders(req)

	body, status, err := c.doRequest(req)
	if err != nil {
		return "", err
	}

	var resp webProfileResponse
	if err := decodeJSON(body, status, &resp); err != nil {
		return "", err
	}
	if resp.Data.User.ID == "" {
		return "", apierrors.New(apierrors.ErrorTypeNotFound,
			fmt.Sprintf("user %s not found", handle), status)
	}

	c.logger.DebugWithFields("resolved user id", map[string]interface{}{
		"username": handle,
		"user_id":  resp.Data.User.ID,
	})
	return resp.Data.User.ID, nil
}

// FetchProfile retrieves the profile record for a resolved user id.
func (c *Client) FetchProfile(ctx context.Context, userID, handle string) (*models.Profile, error) {
	body, status, err := c.postQuery(ctx, QueryProfile, queryParams{UserID: userID})
	if err != nil {
		return nil, err
	}
	return DecodeProfile(body, status, handle)
}

// FetchHighlights retrieves the highlight tray covers for a user.
func (c *Client) FetchHighlights(ctx context.Context, userID, handle string) ([]models.MediaItem, error) {
	body, status, err := c.postQuery(ctx, QueryHighlights, queryParams{UserID: userID})
	if err != nil {
		return nil, err
	}
	return DecodeHighlights(body, status, handle)
}

// FetchPosts retrieves the first timeline page for a user.
func (c *Client) FetchPosts(ctx context.Context, userID, handle string) ([]models.MediaItem, error) {
	body, status, err := c.postQuery(ctx, QueryPosts, queryParams{
		UserID:   userID,
		Handle:   handle,
		PageSize: c.pageSize,
	})
	if err != nil {
		return nil, err
	}
	return DecodePosts(body, status, handle)
}

// FetchSource retrieves a page or script bundle as text. Used by doc id
// discovery to scan markup and bundles for candidate identifiers.
func (c *Client) FetchSource(ctx context.Context, sourceURL string) (string, error) {
	if !strings.HasPrefix(sourceURL, "http") {
		sourceURL = c.baseURL + sourceURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", apierrors.New(apierrors.ErrorTypeUnknown,
			fmt.Sprintf("failed to create request: %v", err), 0)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*")

	body, _, err := c.doRequest(req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Probe issues a profile query with a candidate doc id against a known
// user and reports whether the response looks like real profile data.
func (c *Client) Probe(ctx context.Context, docID, probeUserID string) (models.ProbeResult, error) {
	body, status, err := c.postQueryWithDocID(ctx, QueryProfile, docID,
		queryParams{UserID: probeUserID})
	if err != nil {
		if apierrors.IsRateLimit(err) || apierrors.IsAuth(err) {
			return models.ProbeResult{}, err
		}
		// Other failures are a verdict on the doc id, not on the probe.
		return models.ProbeResult{Status: status, Body: string(body)}, nil
	}
	return models.ProbeResult{Status: status, Body: string(body)}, nil
}

// decodeJSON parses a JSON body into dst, mapping failures to parsing
// errors carrying the HTTP status.
func decodeJSON(body []byte, statusCode int, dst interface{}) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return apierrors.New(apierrors.ErrorTypeParsing,
			fmt.Sprintf("failed to parse response: %v", err), statusCode)
	}
	return nil
}
