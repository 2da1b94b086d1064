// Package thehague implements the provider interface for Parkeren Den Haag.
package thehague

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhulsman/parking-monitor/internal/provider"
)

const Name = "thehague"

const defaultAPIHost = "parkeren.denhaag.nl"

var _ provider.Client = &Client{}

// Client is an API client for Parkeren Den Haag. It logs in with username &
// password and uses the resulting bearer token for all other calls.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
	username   string
	password   string
	location   *time.Location

	lock    sync.Mutex
	token   string
	expires time.Time
}

// New creates a Client. apiHost may be empty, in which case the default host
// is used. httpClient may be nil.
func New(username, password, apiHost string, httpClient *http.Client) (*Client, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	if apiHost == "" {
		apiHost = defaultAPIHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		HTTPClient: httpClient,
		baseURL:    "https://" + apiHost + "/api/v1",
		username:   username,
		password:   password,
		location:   time.Local,
	}, nil
}

func (c *Client) Name() string                   { return Name }
func (c *Client) RequiresEndTime() bool          { return true }
func (c *Client) SupportsFavoriteDeletion() bool { return true }
func (c *Client) SupportsReservationAdjust() bool {
	return true
}

// Login validates the credentials by retrieving the account.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.FetchAccount(ctx)
	return err
}

// FetchAll fetches account, reservations and favorites concurrently.
func (c *Client) FetchAll(ctx context.Context) (provider.Account, []provider.Reservation, []provider.Favorite, error) {
	var (
		account      provider.Account
		reservations []provider.Reservation
		favorites    []provider.Favorite
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		account, err = c.FetchAccount(gCtx)
		return err
	})
	g.Go(func() (err error) {
		reservations, err = c.FetchReservations(gCtx)
		return err
	})
	g.Go(func() (err error) {
		favorites, err = c.FetchFavorites(gCtx)
		return err
	})
	err := g.Wait()
	return account, reservations, favorites, err
}

func (c *Client) FetchAccount(ctx context.Context) (provider.Account, error) {
	var wire wireAccount
	if err := c.call(ctx, http.MethodGet, "/account", nil, &wire); err != nil {
		return provider.Account{}, err
	}
	return wire.account(c.location), nil
}

func (c *Client) FetchReservations(ctx context.Context) ([]provider.Reservation, error) {
	var wire []wireReservation
	if err := c.call(ctx, http.MethodGet, "/reservations", nil, &wire); err != nil {
		return nil, err
	}
	reservations := make([]provider.Reservation, 0, len(wire))
	for _, entry := range wire {
		reservations = append(reservations, entry.reservation(c.location))
	}
	return reservations, nil
}

func (c *Client) FetchFavorites(ctx context.Context) ([]provider.Favorite, error) {
	var wire []wireFavorite
	if err := c.call(ctx, http.MethodGet, "/favorites", nil, &wire); err != nil {
		return nil, err
	}
	favorites := make([]provider.Favorite, 0, len(wire))
	for _, entry := range wire {
		favorites = append(favorites, entry.favorite())
	}
	return favorites, nil
}

// FetchZoneEndTime returns the zone's closing time as reported on the
// account. The start time is not used: the zone window does not vary by day.
func (c *Client) FetchZoneEndTime(ctx context.Context, _ time.Time) (time.Time, error) {
	account, err := c.FetchAccount(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if account.Zone == nil {
		return time.Time{}, nil
	}
	return account.Zone.EndTime, nil
}

func (c *Client) CreateReservation(ctx context.Context, req provider.ReservationRequest) (string, error) {
	body := map[string]any{
		"license_plate": req.LicensePlate,
		"valid_from":    req.StartTime.UTC().Format(time.RFC3339),
	}
	if req.Name != "" {
		body["label"] = req.Name
	}
	if !req.EndTime.IsZero() {
		body["valid_until"] = req.EndTime.UTC().Format(time.RFC3339)
	}
	var wire wireReservation
	if err := c.call(ctx, http.MethodPost, "/reservations", body, &wire); err != nil {
		return "", err
	}
	return wire.id(), nil
}

func (c *Client) DeleteReservation(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/reservations/"+id, nil, nil)
}

func (c *Client) AdjustReservationEndTime(ctx context.Context, id string, end time.Time) error {
	body := map[string]any{"valid_until": end.UTC().Format(time.RFC3339)}
	return c.call(ctx, http.MethodPut, "/reservations/"+id, body, nil)
}

func (c *Client) CreateFavorite(ctx context.Context, name, licensePlate string) error {
	body := map[string]any{"label": name, "license_plate": licensePlate}
	return c.call(ctx, http.MethodPost, "/favorites", body, nil)
}

func (c *Client) UpdateFavorite(ctx context.Context, id, name, licensePlate string) error {
	body := map[string]any{"label": name, "license_plate": licensePlate}
	return c.call(ctx, http.MethodPut, "/favorites/"+id, body, nil)
}

func (c *Client) DeleteFavorite(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/favorites/"+id, nil, nil)
}

// authenticate obtains a bearer token, or renews it when expired.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}

	body, _ := json.Marshal(map[string]string{"username": c.username, "password": c.password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", provider.ErrConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp)
	}

	var response struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	c.token = response.Token
	c.expires = time.Now().Add(time.Duration(response.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any, response any) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", provider.ErrConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		// token may have been revoked. force a new login on the next call.
		c.lock.Lock()
		c.token = ""
		c.lock.Unlock()
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errorFromResponse(resp)
	}
	if response == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}

func errorFromResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return provider.ErrAuthentication
	case http.StatusTooManyRequests:
		var retryAfter time.Duration
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(seconds) * time.Second
		}
		return &provider.RateLimitError{RetryAfter: retryAfter}
	default:
		return errors.New(resp.Status)
	}
}

// parseTime parses a provider timestamp. Timestamps without a zone offset are
// interpreted in loc. An unparseable value yields the zero time.
func parseTime(value string, loc *time.Location) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed
	}
	if parsed, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc); err == nil {
		return parsed
	}
	return time.Time{}
}
