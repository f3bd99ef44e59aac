// Package broker provides the TradeStation API session used to turn parsed
// trade alerts into linked entry/stop order groups. It maintains an OAuth2
// access-token lease renewed from a long-lived refresh token.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"alertbot/internal/models"
	"alertbot/internal/util"
)

// tokenRefreshMargin is how long before the lease expiry a token is treated
// as stale. Refreshing early keeps in-flight orders off a dying token.
const tokenRefreshMargin = 60 * time.Second

// defaultBaseURL points at the TradeStation simulator. Live trading must be
// an explicit configuration decision.
const defaultBaseURL = "https://sim-api.tradestation.com/v3"

// APIError represents a non-success HTTP response with status code and body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// AuthFailure wraps any error raised while refreshing the access token.
// A failed refresh leaves the previously cached token untouched; callers
// must skip order submission for the current alert and let the next alert
// trigger a fresh attempt.
type AuthFailure struct {
	Err error
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("access token refresh failed: %v", e.Err)
}

func (e *AuthFailure) Unwrap() error { return e.Err }

// OrderSubmissionFailure wraps a rejected or failed order-group request.
// Auth and order submission are independent failure domains: an order
// failure never invalidates the cached token.
type OrderSubmissionFailure struct {
	Err error
}

func (e *OrderSubmissionFailure) Error() string {
	return fmt.Sprintf("order submission failed: %v", e.Err)
}

func (e *OrderSubmissionFailure) Unwrap() error { return e.Err }

// ErrCredentialsIncomplete is returned (wrapped in AuthFailure) when one or
// more broker credentials are missing. The session is still constructible in
// this state; only order-submitting calls fail.
var ErrCredentialsIncomplete = errors.New("one or more broker credentials are missing")

// Credentials holds the OAuth2 client and account identity used against the
// TradeStation API. Read-only to the session.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccountKey   string
	RedirectURI  string
	RefreshToken string
}

// Complete reports whether every credential needed for order flow is present.
func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.AccountKey != "" &&
		c.RedirectURI != "" && c.RefreshToken != ""
}

// TradeStationAPI is a stateful broker session: it caches a bearer token with
// its expiry and refreshes it lazily on use. The token lease is the only
// mutable state and is guarded by a mutex so concurrent submissions collapse
// into a single refresh.
type TradeStationAPI struct {
	client  *http.Client
	baseURL string
	creds   Credentials
	logger  *logrus.Logger
	now     func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewTradeStationAPI creates a session against baseURL (the simulator when
// empty). Missing credentials degrade rather than fail: the session is
// usable but every submission returns an AuthFailure.
func NewTradeStationAPI(creds Credentials, baseURL string, logger *logrus.Logger) *TradeStationAPI {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if logger == nil {
		logger = logrus.New()
	}
	if !creds.Complete() {
		logger.Warn("one or more broker credentials are missing; orders cannot be submitted until they are provided")
	}
	return &TradeStationAPI{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		creds:   creds,
		logger:  logger,
		now:     time.Now,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradeStationAPI) WithHTTPClient(c *http.Client) *TradeStationAPI {
	if c != nil {
		t.client = c
	}
	return t
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradeStationAPI) WithTimeout(timeout time.Duration) *TradeStationAPI {
	if timeout > 0 && t.client != nil {
		t.client.Timeout = timeout
	}
	return t
}

// WithClock overrides the session clock used for lease-expiry checks.
func (t *TradeStationAPI) WithClock(now func() time.Time) *TradeStationAPI {
	if now != nil {
		t.now = now
	}
	return t
}

// tokenResponse is the JSON body of POST /security/authorize.
type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in"`
}

// TokenStatus describes the current access-token lease for observability.
type TokenStatus struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

// TokenStatus reports whether a non-expired token is currently cached.
func (t *TradeStationAPI) TokenStatus() TokenStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accessToken == "" || !t.tokenValidLocked() {
		return TokenStatus{}
	}
	return TokenStatus{Authenticated: true, ExpiresAt: t.expiresAt}
}

// tokenValidLocked reports whether the cached token is still inside its
// lease, margin included. Caller must hold t.mu.
func (t *TradeStationAPI) tokenValidLocked() bool {
	return t.accessToken != "" && t.now().Add(tokenRefreshMargin).Before(t.expiresAt)
}

// RefreshAccessToken exchanges the refresh token for a new access token and
// replaces the lease wholesale. On any failure the previous lease is left
// untouched and an AuthFailure is returned.
func (t *TradeStationAPI) RefreshAccessToken(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked(ctx)
}

func (t *TradeStationAPI) refreshLocked(ctx context.Context) error {
	if !t.creds.Complete() {
		return &AuthFailure{Err: ErrCredentialsIncomplete}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", t.creds.ClientID)
	form.Set("client_secret", t.creds.ClientSecret)
	form.Set("refresh_token", t.creds.RefreshToken)
	form.Set("redirect_uri", t.creds.RedirectURI)

	t.logger.Info("refreshing TradeStation access token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/security/authorize", strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthFailure{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "alertbot/1.0 (+tradestation)")

	resp, err := t.client.Do(req)
	if err != nil {
		return &AuthFailure{Err: err}
	}
	defer t.closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &AuthFailure{Err: &APIError{Status: resp.StatusCode, Body: string(body)}}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return &AuthFailure{Err: fmt.Errorf("decoding token response: %w", err)}
	}
	if token.AccessToken == "" || token.ExpiresIn <= 0 {
		return &AuthFailure{Err: fmt.Errorf("token response missing access_token or expires_in")}
	}

	t.accessToken = token.AccessToken
	t.expiresAt = t.now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenRefreshMargin)
	t.logger.WithField("expires_in", token.ExpiresIn).Info("obtained new access token")
	return nil
}

// getAccessToken returns a valid bearer token, refreshing if the cached one
// is absent or inside the safety margin.
func (t *TradeStationAPI) getAccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tokenValidLocked() {
		return t.accessToken, nil
	}
	if err := t.refreshLocked(ctx); err != nil {
		return "", err
	}
	return t.accessToken, nil
}

// OrderLeg is a single order object inside an order-group request.
type OrderLeg struct {
	AccountKey  string  `json:"AccountKey"`
	Symbol      string  `json:"Symbol"`
	Quantity    int     `json:"Quantity"`
	OrderAction string  `json:"OrderAction"`
	OrderType   string  `json:"OrderType"`
	LimitPrice  float64 `json:"LimitPrice,omitempty"`
	StopPrice   float64 `json:"StopPrice,omitempty"`
	TimeInForce string  `json:"TimeInForce"`
	Route       string  `json:"Route"`
}

// OrderGroupRequest is the JSON body of POST /order/groups.
type OrderGroupRequest struct {
	Orders []OrderLeg `json:"Orders"`
}

// BuildBracketOrder constructs the two linked legs for an alert: a day
// buy-limit entry at the alert's entry price and a day sell-stop at its stop
// price, both on the derived option symbol.
func BuildBracketOrder(accountKey string, alert *models.TradeAlert, quantity int) (*OrderGroupRequest, error) {
	optionSymbol, err := OptionSymbol(alert.Symbol, alert.Strike, alert.Type, alert.Expiration)
	if err != nil {
		return nil, err
	}
	entry := OrderLeg{
		AccountKey:  accountKey,
		Symbol:      optionSymbol,
		Quantity:    quantity,
		OrderAction: "Buy",
		OrderType:   "Limit",
		LimitPrice:  util.RoundPremium(alert.EntryPrice),
		TimeInForce: "Day",
		Route:       "AUTO",
	}
	stop := OrderLeg{
		AccountKey:  accountKey,
		Symbol:      optionSymbol,
		Quantity:    quantity,
		OrderAction: "Sell",
		OrderType:   "Stop",
		StopPrice:   util.RoundPremium(alert.StopPrice),
		TimeInForce: "Day",
		Route:       "AUTO",
	}
	return &OrderGroupRequest{Orders: []OrderLeg{entry, stop}}, nil
}

// SubmitBracketOrder obtains a valid access token, builds the option symbol,
// and submits the linked entry/stop pair as a single order group. The
// broker's acknowledgment is returned verbatim. This call performs network
// I/O and must not run on the gateway read loop.
func (t *TradeStationAPI) SubmitBracketOrder(ctx context.Context, alert *models.TradeAlert, quantity int) (json.RawMessage, error) {
	if alert == nil {
		return nil, &OrderSubmissionFailure{Err: fmt.Errorf("alert is nil")}
	}
	if err := alert.Validate(); err != nil {
		return nil, &OrderSubmissionFailure{Err: err}
	}
	if quantity <= 0 {
		return nil, &OrderSubmissionFailure{Err: fmt.Errorf("invalid quantity %d: must be > 0", quantity)}
	}

	token, err := t.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	group, err := BuildBracketOrder(t.creds.AccountKey, alert, quantity)
	if err != nil {
		return nil, &OrderSubmissionFailure{Err: err}
	}

	payload, err := json.Marshal(group)
	if err != nil {
		return nil, &OrderSubmissionFailure{Err: err}
	}

	t.logger.WithFields(logrus.Fields{
		"symbol":     group.Orders[0].Symbol,
		"quantity":   quantity,
		"entry":      alert.EntryPrice,
		"stop":       alert.StopPrice,
		"expiration": alert.Expiration.Format("2006-01-02"),
	}).Info("submitting bracket order")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.baseURL+"/order/groups", strings.NewReader(string(payload)))
	if err != nil {
		return nil, &OrderSubmissionFailure{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "alertbot/1.0 (+tradestation)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &OrderSubmissionFailure{Err: err}
	}
	defer t.closeBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, &OrderSubmissionFailure{Err: fmt.Errorf("reading response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &OrderSubmissionFailure{Err: &APIError{Status: resp.StatusCode, Body: string(body)}}
	}

	t.logger.WithField("status", resp.StatusCode).Info("bracket order submitted")
	return json.RawMessage(body), nil
}

func (t *TradeStationAPI) closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		t.logger.WithError(err).Warn("failed to close response body")
	}
}
