// Package xapi provides the governed client for the X (Twitter) API.
//
// Transport is the abstract boundary to the posting/messaging API. The
// HTTP implementation speaks the X API v2 endpoints plus the legacy v1.1
// media upload; the dry-run implementation returns canned successes.
package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// API endpoints. The media upload still lives on the v1.1 host and requires
// OAuth 1.0a user-context signing.
const (
	baseURL        = "https://api.twitter.com/2"
	mediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	tokenURL       = "https://api.twitter.com/2/oauth2/token"

	dmEventFields = "id,text,created_at,sender_id,dm_conversation_id,attachments"
	dmExpansions  = "sender_id,attachments.media_keys"
	dmUserFields  = "id,username,name,profile_image_url"
	dmMediaFields = "media_key,type,url,preview_image_url"
)

// Transport is the abstract set of operations consumed from the X API.
// All calls are expected to be routed through the rate governor by the
// Client; implementations perform a single attempt and classify failures.
type Transport interface {
	VerifyIdentity(ctx context.Context) (models.AccountIdentity, error)
	CreatePost(ctx context.Context, text string, mediaIDs []string) (models.Post, error)
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
	ListInboxEvents(ctx context.Context, sinceID string, maxResults int) (models.InboxPage, error)
	ListConversationEvents(ctx context.Context, conversationID string, maxResults int) (models.InboxPage, error)
	SendReply(ctx context.Context, conversationID, text, mediaID string) (string, error)
	RefreshToken(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// httpTransport is the production Transport over net/http.
type httpTransport struct {
	creds      models.Credentials
	client     *http.Client
	uploadHTTP *http.Client // OAuth1-signed, used only for media upload
	userToken  func() string
}

// NewHTTPTransport builds the production transport. userToken supplies the
// current OAuth2 user-context access token for DM endpoints; it is consulted
// per request so a background refresh is picked up without rebuilding the
// transport.
func NewHTTPTransport(creds models.Credentials, userToken func() string) Transport {
	oaCfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	oaTok := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	if userToken == nil {
		userToken = func() string { return creds.UserAccessToken }
	}
	return &httpTransport{
		creds:      creds,
		client:     &http.Client{Timeout: 30 * time.Second},
		uploadHTTP: oaCfg.Client(oauth1.NoContext, oaTok),
		userToken:  userToken,
	}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", "error", err)
	}
}

// classify maps one HTTP response to the error taxonomy. A 429 carries the
// x-rate-limit-reset header as a retry-after hint when present.
func classify(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	base := fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(body))
	ae := &models.APIError{Op: op, StatusCode: resp.StatusCode, Err: base}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		ae.Kind = models.KindRateLimited
		if reset := resp.Header.Get("x-rate-limit-reset"); reset != "" {
			if ts, err := strconv.ParseInt(reset, 10, 64); err == nil {
				if wait := time.Until(time.Unix(ts, 0)); wait > 0 {
					ae.RetryAfter = wait
				}
			}
		}
		if ra := resp.Header.Get("retry-after"); ra != "" && ae.RetryAfter == 0 {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				ae.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	case resp.StatusCode == http.StatusUnauthorized:
		ae.Kind = models.KindAuthenticationFailed
	case resp.StatusCode == http.StatusForbidden:
		ae.Kind = models.KindPermissionDenied
	case resp.StatusCode >= 500:
		ae.Kind = models.KindTransientNetwork
	default:
		ae.Kind = models.KindPermanentClientError
	}
	return ae
}

// netErr wraps a transport-level failure (DNS, reset, timeout).
func netErr(op string, err error) error {
	return &models.APIError{Kind: models.KindTransientNetwork, Op: op, Err: err}
}

func (t *httpTransport) bearerRequest(ctx context.Context, op, method, rawURL string, body io.Reader, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, netErr(op, err)
	}
	return resp, nil
}

func (t *httpTransport) VerifyIdentity(ctx context.Context) (models.AccountIdentity, error) {
	const op = "verify_identity"
	resp, err := t.bearerRequest(ctx, op, http.MethodGet, baseURL+"/users/me", nil, t.creds.BearerToken)
	if err != nil {
		return models.AccountIdentity{}, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return models.AccountIdentity{}, classify(op, resp)
	}
	var body struct {
		Data models.AccountIdentity `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.AccountIdentity{}, netErr(op, err)
	}
	return body.Data, nil
}

func (t *httpTransport) CreatePost(ctx context.Context, text string, mediaIDs []string) (models.Post, error) {
	const op = "create_post"
	payload := map[string]any{"text": text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.Post{}, &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: err}
	}
	resp, err := t.bearerRequest(ctx, op, http.MethodPost, baseURL+"/tweets", bytes.NewReader(raw), t.userToken())
	if err != nil {
		return models.Post{}, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusCreated {
		return models.Post{}, classify(op, resp)
	}
	var body struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Post{}, netErr(op, err)
	}
	return models.Post{
		ID:   body.Data.ID,
		Text: body.Data.Text,
		URL:  "https://twitter.com/i/web/status/" + body.Data.ID,
	}, nil
}

func (t *httpTransport) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	const op = "upload_media"
	if len(data) == 0 {
		return "", &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: models.ErrEmptyMediaBytes}
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", "media")
	if err != nil {
		return "", &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return "", &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mediaUploadURL, &buf)
	if err != nil {
		return "", &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := t.uploadHTTP.Do(req)
	if err != nil {
		return "", netErr(op, err)
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classify(op, resp)
	}
	var body struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", netErr(op, err)
	}
	return body.MediaIDString, nil
}

// dmEventsURL builds a dm_events listing URL with the standard field set.
func dmEventsURL(path, sinceID string, maxResults int) string {
	if maxResults <= 0 || maxResults > models.MaxInboxBatch {
		maxResults = models.MaxInboxBatch
	}
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("dm_event.fields", dmEventFields)
	q.Set("expansions", dmExpansions)
	q.Set("user.fields", dmUserFields)
	q.Set("media.fields", dmMediaFields)
	if sinceID != "" {
		q.Set("since_id", sinceID)
	}
	return path + "?" + q.Encode()
}

// dmEventsEnvelope is the wire shape of a dm_events response, including the
// includes block used to resolve senders and media.
type dmEventsEnvelope struct {
	Data []struct {
		ID             string    `json:"id"`
		Text           string    `json:"text"`
		CreatedAt      time.Time `json:"created_at"`
		SenderID       string    `json:"sender_id"`
		ConversationID string    `json:"dm_conversation_id"`
		Attachments    struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"users"`
		Media []struct {
			MediaKey   string `json:"media_key"`
			Type       string `json:"type"`
			URL        string `json:"url"`
			PreviewURL string `json:"preview_image_url"`
		} `json:"media"`
	} `json:"includes"`
	Meta struct {
		NextToken string `json:"next_token"`
		NewestID  string `json:"newest_id"`
	} `json:"meta"`
}

func (env *dmEventsEnvelope) toPage() models.InboxPage {
	users := make(map[string]struct{ username, name string }, len(env.Includes.Users))
	for _, u := range env.Includes.Users {
		users[u.ID] = struct{ username, name string }{u.Username, u.Name}
	}
	media := make(map[string]models.MediaRef, len(env.Includes.Media))
	for _, m := range env.Includes.Media {
		media[m.MediaKey] = models.MediaRef{MediaKey: m.MediaKey, Type: m.Type, URL: m.URL, PreviewURL: m.PreviewURL}
	}
	page := models.InboxPage{NextToken: env.Meta.NextToken, Newest: env.Meta.NewestID}
	for _, ev := range env.Data {
		event := models.DMEvent{
			ID:             ev.ID,
			Text:           ev.Text,
			SenderID:       ev.SenderID,
			ConversationID: ev.ConversationID,
			CreatedAt:      ev.CreatedAt,
		}
		if u, ok := users[ev.SenderID]; ok {
			event.SenderUsername = u.username
			event.SenderName = u.name
		}
		for _, key := range ev.Attachments.MediaKeys {
			if ref, ok := media[key]; ok {
				event.Media = append(event.Media, ref)
			}
		}
		page.Events = append(page.Events, event)
	}
	return page
}

func (t *httpTransport) listEvents(ctx context.Context, op, rawURL string) (models.InboxPage, error) {
	resp, err := t.bearerRequest(ctx, op, http.MethodGet, rawURL, nil, t.userToken())
	if err != nil {
		return models.InboxPage{}, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return models.InboxPage{}, classify(op, resp)
	}
	var env dmEventsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return models.InboxPage{}, netErr(op, err)
	}
	return env.toPage(), nil
}

func (t *httpTransport) ListInboxEvents(ctx context.Context, sinceID string, maxResults int) (models.InboxPage, error) {
	return t.listEvents(ctx, "list_inbox_events", dmEventsURL(baseURL+"/dm_events", sinceID, maxResults))
}

func (t *httpTransport) ListConversationEvents(ctx context.Context, conversationID string, maxResults int) (models.InboxPage, error) {
	path := fmt.Sprintf("%s/dm_conversations/%s/dm_events", baseURL, url.PathEscape(conversationID))
	return t.listEvents(ctx, "list_conversation_events", dmEventsURL(path, "", maxResults))
}

func (t *httpTransport) SendReply(ctx context.Context, conversationID, text, mediaID string) (string, error) {
	const op = "send_reply"
	payload := map[string]any{"text": text}
	if mediaID != "" {
		payload["attachments"] = []map[string]string{{"media_id": mediaID}}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: err}
	}
	endpoint := fmt.Sprintf("%s/dm_conversations/%s/messages", baseURL, url.PathEscape(conversationID))
	resp, err := t.bearerRequest(ctx, op, http.MethodPost, endpoint, bytes.NewReader(raw), t.userToken())
	if err != nil {
		return "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusCreated {
		return "", classify(op, resp)
	}
	var body struct {
		Data struct {
			DMEventID string `json:"dm_event_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", netErr(op, err)
	}
	return body.Data.DMEventID, nil
}

func (t *httpTransport) RefreshToken(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "refresh_token"
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", t.creds.OAuth2ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return models.TokenPair{}, &models.APIError{Kind: models.KindPermanentClientError, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if t.creds.OAuth2Secret != "" {
		req.SetBasicAuth(t.creds.OAuth2ClientID, t.creds.OAuth2Secret)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return models.TokenPair{}, netErr(op, err)
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return models.TokenPair{}, classify(op, resp)
	}
	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.TokenPair{}, netErr(op, err)
	}
	if body.AccessToken == "" {
		return models.TokenPair{}, &models.APIError{Kind: models.KindAuthenticationFailed, Op: op,
			Err: fmt.Errorf("empty access_token in refresh response")}
	}
	return models.TokenPair{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
