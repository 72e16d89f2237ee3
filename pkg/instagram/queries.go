package instagram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	apierrors "igcrawler/pkg/errors"
	"igcrawler/pkg/models"
)

// QueryKind identifies one of the GraphQL query shapes the crawler issues.
type QueryKind string

const (
	QueryProfile    QueryKind = "profile"
	QueryHighlights QueryKind = "highlights"
	QueryPosts      QueryKind = "posts"
)

// DocIDs holds the volatile per-kind query identifiers. These rotate
// upstream and are refreshed through the docid registry.
type DocIDs struct {
	Profile    string
	Highlights string
	Posts      string
}

// ForKind returns the identifier configured for the given query kind.
func (d DocIDs) ForKind(kind QueryKind) string {
	switch kind {
	case QueryProfile:
		return d.Profile
	case QueryHighlights:
		return d.Highlights
	case QueryPosts:
		return d.Posts
	default:
		return ""
	}
}

// MaxPageSize caps the posts page size accepted by the API.
const MaxPageSize = 50

// queryParams carries the per-kind variable inputs.
type queryParams struct {
	UserID   string
	Handle   string
	PageSize int
}

// friendlyNames maps each kind to the fb_api_req_friendly_name the API
// expects for that document.
var friendlyNames = map[QueryKind]string{
	QueryProfile:    "PolarisProfilePageContentQuery",
	QueryHighlights: "PolarisProfileStoryHighlightsTrayContentQuery",
	QueryPosts:      "PolarisProfilePostsQuery",
}

// buildQueryBody encodes the form body for one GraphQL request: the fixed
// protocol envelope, the per-kind friendly name, the doc id, and the
// per-kind variables object.
func buildQueryBody(kind QueryKind, docID string, dtsg, lsd string, p queryParams) (url.Values, error) {
	variables, err := buildVariables(kind, p)
	if err != nil {
		return nil, err
	}

	body := url.Values{}
	// Boilerplate fields the endpoint expects on every query.
	body.Set("__d", "www")
	body.Set("__user", "0")
	body.Set("__a", "1")
	body.Set("__comet_req", "7")
	body.Set("fb_api_caller_class", "RelayModern")
	body.Set("server_timestamps", "true")
	if dtsg != "" {
		body.Set("fb_dtsg", dtsg)
	}
	if lsd != "" {
		body.Set("lsd", lsd)
	}

	body.Set("fb_api_req_friendly_name", friendlyNames[kind])
	body.Set("variables", variables)
	body.Set("doc_id", docID)
	return body, nil
}

// buildVariables encodes the per-kind variables JSON.
func buildVariables(kind QueryKind, p queryParams) (string, error) {
	var v interface{}
	switch kind {
	case QueryProfile:
		if p.UserID == "" {
			return "", fmt.Errorf("profile query requires a user id")
		}
		v = map[string]interface{}{
			"id":             p.UserID,
			"render_surface": "PROFILE",
		}
	case QueryHighlights:
		if p.UserID == "" {
			return "", fmt.Errorf("highlights query requires a user id")
		}
		v = map[string]interface{}{
			"user_id": p.UserID,
		}
	case QueryPosts:
		if p.Handle == "" {
			return "", fmt.Errorf("posts query requires a handle")
		}
		pageSize := p.PageSize
		if pageSize <= 0 {
			pageSize = 12
		} else if pageSize > MaxPageSize {
			pageSize = MaxPageSize
		}
		v = map[string]interface{}{
			"data": map[string]interface{}{
				"count":                             pageSize,
				"include_reel_media_seen_timestamp": true,
				"include_relationship_info":         true,
				"latest_besties_reel_media":         true,
				"latest_reel_media":                 true,
			},
			"username": p.Handle,
			"__relay_internal__pv__PolarisIsLoggedInrelayprovider":   true,
			"__relay_internal__pv__PolarisShareSheetV3relayprovider": true,
		}
	default:
		return "", fmt.Errorf("unknown query kind %q", kind)
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// decodeEnvelope parses a GraphQL response body. A body that is not JSON,
// or that carries a top-level errors array, decodes to a typed failure
// with the raw message preserved.
func decodeEnvelope(body []byte, statusCode int) (json.RawMessage, *apierrors.Error) {
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
		Status string          `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apierrors.New(apierrors.ErrorTypeParsing,
			fmt.Sprintf("failed to parse response: %v", err), statusCode)
	}
	if len(envelope.Errors) > 0 {
		return nil, apierrors.New(apierrors.ErrorTypeParsing,
			envelope.Errors[0].Message, statusCode)
	}
	return envelope.Data, nil
}

// emptyPayload reports whether a response carried no data object at all.
func emptyPayload(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// DecodeProfile turns a raw profile query response into a Profile record.
// A private profile decodes successfully; a missing user payload is a
// failure because the profile query has no legitimate empty result.
func DecodeProfile(body []byte, statusCode int, handle string) (*models.Profile, error) {
	raw, apiErr := decodeEnvelope(body, statusCode)
	if apiErr != nil {
		return nil, apiErr
	}

	if emptyPayload(raw) {
		return nil, apierrors.New(apierrors.ErrorTypeParsing,
			"empty user payload in profile response", statusCode)
	}

	var data profileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apierrors.New(apierrors.ErrorTypeParsing,
			fmt.Sprintf("failed to parse profile payload: %v", err), statusCode)
	}
	if data.User == nil {
		return nil, apierrors.New(apierrors.ErrorTypeParsing,
			"empty user payload in profile response", statusCode)
	}

	u := data.User
	category := ""
	if u.IsBusiness {
		category = u.Category
	}
	return &models.Profile{
		Handle:         handle,
		FullName:       u.FullName,
		Biography:      u.Biography,
		Category:       category,
		ExternalURL:    u.ExternalURL,
		IsPrivate:      u.IsPrivate,
		IsBusiness:     u.IsBusiness,
		FollowerCount:  u.FollowerCount,
		FollowingCount: u.FollowingCount,
		MediaCount:     u.MediaCount,
	}, nil
}

// DecodePosts turns a raw posts query response into media items. A 200
// response whose payload path is absent, or that carries no data object at
// all, decodes to an empty slice: a profile may legitimately have no posts.
func DecodePosts(body []byte, statusCode int, handle string) ([]models.MediaItem, error) {
	raw, apiErr := decodeEnvelope(body, statusCode)
	if apiErr != nil {
		return nil, apiErr
	}
	if emptyPayload(raw) {
		return nil, nil
	}

	var data postsData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apierrors.New(apierrors.ErrorTypeParsing,
			fmt.Sprintf("failed to parse posts payload: %v", err), statusCode)
	}
	if data.Timeline == nil {
		return nil, nil
	}

	items := make([]models.MediaItem, 0, len(data.Timeline.Edges))
	for _, edge := range data.Timeline.Edges {
		node := edge.Node
		if len(node.ImageVersions2.Candidates) == 0 {
			continue
		}
		subKind := models.PostSubKindPhoto
		if node.MediaType == 2 {
			subKind = models.PostSubKindVideo
		}
		items = append(items, models.MediaItem{
			OwnerHandle:  handle,
			URL:          node.ImageVersions2.Candidates[0].URL,
			Kind:         models.MediaKindPost,
			SubKind:      subKind,
			LikeCount:    node.LikeCount,
			CommentCount: node.CommentCount,
		})
	}
	return items, nil
}

// DecodeHighlights turns a raw highlights query response into media items.
// Same empty-payload rule as posts.
func DecodeHighlights(body []byte, statusCode int, handle string) ([]models.MediaItem, error) {
	raw, apiErr := decodeEnvelope(body, statusCode)
	if apiErr != nil {
		return nil, apiErr
	}
	if emptyPayload(raw) {
		return nil, nil
	}

	var data highlightsData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apierrors.New(apierrors.ErrorTypeParsing,
			fmt.Sprintf("failed to parse highlights payload: %v", err), statusCode)
	}
	if data.Highlights == nil {
		return nil, nil
	}

	items := make([]models.MediaItem, 0, len(data.Highlights.Edges))
	for _, edge := range data.Highlights.Edges {
		coverURL := edge.Node.CoverMedia.CroppedImageVersion.URL
		if coverURL == "" {
			continue
		}
		items = append(items, models.MediaItem{
			OwnerHandle: handle,
			URL:         coverURL,
			Kind:        models.MediaKindHighlight,
		})
	}
	return items, nil
}

// statusError maps a non-200 HTTP status to the crawl error taxonomy.
func statusError(statusCode int) *apierrors.Error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apierrors.New(apierrors.ErrorTypeAuth, "authentication required or session expired", statusCode)
	case http.StatusNotFound:
		return apierrors.New(apierrors.ErrorTypeNotFound, "resource not found", statusCode)
	case http.StatusTooManyRequests:
		return apierrors.New(apierrors.ErrorTypeRateLimit, "rate limit exceeded", statusCode)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return apierrors.New(apierrors.ErrorTypeServerError, "server error", statusCode)
	default:
		return apierrors.New(apierrors.ErrorTypeUnknown,
			fmt.Sprintf("unexpected status code: %d", statusCode), statusCode)
	}
}
