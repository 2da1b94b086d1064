// Package dvsportal implements the provider interface for DVSPortal-based
// municipal visitor parking portals.
package dvsportal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rhulsman/parking-monitor/internal/provider"
)

const Name = "dvsportal"

var _ provider.Client = &Client{}

// Client is an API client for a DVSPortal deployment. The portal is hosted
// per municipality, so the api host is required. A permit snapshot (balance,
// active reservations, known license plates and the default permit) is
// fetched in one call.
type Client struct {
	HTTPClient *http.Client
	baseURL    string
	identifier string
	password   string
	location   *time.Location

	lock          sync.Mutex
	token         string
	defaultTypeID int
	defaultCode   string
}

// New creates a Client for the portal at apiHost. httpClient may be nil.
func New(apiHost, identifier, password string, httpClient *http.Client) (*Client, error) {
	if apiHost == "" || identifier == "" || password == "" {
		return nil, errors.New("api host, identifier and password are required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		HTTPClient: httpClient,
		baseURL:    "https://" + apiHost + "/api",
		identifier: identifier,
		password:   password,
		location:   time.Local,
	}, nil
}

func (c *Client) Name() string                    { return Name }
func (c *Client) RequiresEndTime() bool           { return false }
func (c *Client) SupportsFavoriteDeletion() bool  { return false }
func (c *Client) SupportsReservationAdjust() bool { return false }

// Login validates the credentials by obtaining a token.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.authenticate(ctx)
	return err
}

func (c *Client) FetchAll(ctx context.Context) (provider.Account, []provider.Reservation, []provider.Favorite, error) {
	snapshot, err := c.update(ctx)
	if err != nil {
		return provider.Account{}, nil, nil, err
	}
	return snapshot.account(c.identifier), snapshot.reservations(c.location), snapshot.favorites(), nil
}

func (c *Client) FetchAccount(ctx context.Context) (provider.Account, error) {
	snapshot, err := c.update(ctx)
	if err != nil {
		return provider.Account{}, err
	}
	return snapshot.account(c.identifier), nil
}

func (c *Client) FetchReservations(ctx context.Context) ([]provider.Reservation, error) {
	snapshot, err := c.update(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.reservations(c.location), nil
}

func (c *Client) FetchFavorites(ctx context.Context) ([]provider.Favorite, error) {
	snapshot, err := c.update(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.favorites(), nil
}

// FetchZoneEndTime is not offered by DVSPortal deployments.
func (c *Client) FetchZoneEndTime(_ context.Context, _ time.Time) (time.Time, error) {
	return time.Time{}, fmt.Errorf("zone end time: %w", provider.ErrUnsupported)
}

func (c *Client) CreateReservation(ctx context.Context, req provider.ReservationRequest) (string, error) {
	typeID, code, err := c.permitDefaults(ctx)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"permitMediaTypeID": typeID,
		"permitMediaCode":   code,
		"licensePlate": map[string]any{
			"value": req.LicensePlate,
			"name":  req.Name,
		},
		"dateFrom": req.StartTime.UTC().Format(time.RFC3339),
	}
	if !req.EndTime.IsZero() {
		body["dateUntil"] = req.EndTime.UTC().Format(time.RFC3339)
	}
	var response struct {
		ReservationID provider.ID `json:"reservationid"`
	}
	if err = c.call(ctx, "/reservation/create", body, &response); err != nil {
		return "", err
	}
	return response.ReservationID.String(), nil
}

func (c *Client) DeleteReservation(ctx context.Context, id string) error {
	typeID, code, err := c.permitDefaults(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"permitMediaTypeID": typeID,
		"permitMediaCode":   code,
		"reservationID":     id,
	}
	return c.call(ctx, "/reservation/end", body, nil)
}

// AdjustReservationEndTime is not offered by DVSPortal deployments.
func (c *Client) AdjustReservationEndTime(_ context.Context, _ string, _ time.Time) error {
	return fmt.Errorf("adjust reservation: %w", provider.ErrUnsupported)
}

// CreateFavorite stores a license plate on the permit.
func (c *Client) CreateFavorite(ctx context.Context, name, licensePlate string) error {
	return c.storeLicensePlate(ctx, name, licensePlate)
}

// UpdateFavorite re-stores the license plate; the portal has no separate
// update call and keys plates by their value.
func (c *Client) UpdateFavorite(ctx context.Context, _, name, licensePlate string) error {
	return c.storeLicensePlate(ctx, name, licensePlate)
}

// DeleteFavorite is not offered by DVSPortal deployments.
func (c *Client) DeleteFavorite(_ context.Context, _ string) error {
	return fmt.Errorf("delete favorite: %w", provider.ErrUnsupported)
}

func (c *Client) storeLicensePlate(ctx context.Context, name, licensePlate string) error {
	typeID, code, err := c.permitDefaults(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"permitMediaTypeID": typeID,
		"permitMediaCode":   code,
		"licensePlate": map[string]any{
			"value": licensePlate,
			"name":  name,
		},
	}
	return c.call(ctx, "/licenseplate/store", body, nil)
}

// permitDefaults returns the default permit's type id and code, fetching a
// fresh snapshot when they are not known yet.
func (c *Client) permitDefaults(ctx context.Context) (int, string, error) {
	c.lock.Lock()
	typeID, code := c.defaultTypeID, c.defaultCode
	c.lock.Unlock()
	if typeID != 0 && code != "" {
		return typeID, code, nil
	}
	if _, err := c.update(ctx); err != nil {
		return 0, "", err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.defaultTypeID, c.defaultCode, nil
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	body, _ := json.Marshal(map[string]string{
		"identifier": c.identifier,
		"password":   c.password,
	})
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
		Token string `json:"token"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	c.token = response.Token
	return c.token, nil
}

// update fetches the permit snapshot and caches the default permit identity.
func (c *Client) update(ctx context.Context) (*wireSnapshot, error) {
	var snapshot wireSnapshot
	if err := c.call(ctx, "/login/permits", map[string]any{}, &snapshot); err != nil {
		return nil, err
	}
	c.lock.Lock()
	if permit := snapshot.defaultPermit(); permit != nil {
		c.defaultTypeID = permit.TypeID
		c.defaultCode = permit.Code
	}
	c.lock.Unlock()
	return &snapshot, nil
}

func (c *Client) call(ctx context.Context, path string, body any, response any) error {
	token, err := c.authenticate(ctx)
	if err != nil {
		return err
	}

	encoded, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", provider.ErrConnection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.lock.Lock()
		c.token = ""
		c.lock.Unlock()
	}
	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}
	if response == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
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

type wireSnapshot struct {
	Permits []wirePermit `json:"permits"`
}

type wirePermit struct {
	TypeID        int               `json:"permitMediaTypeID"`
	Code          string            `json:"permitMediaCode"`
	Balance       int               `json:"balance"`
	IsDefault     bool              `json:"isDefault"`
	Reservations  []wireReservation `json:"reservations"`
	LicensePlates map[string]string `json:"licensePlates"`
}

type wireReservation struct {
	ReservationID provider.ID `json:"reservationid"`
	LicensePlate  string      `json:"licensePlate"`
	ValidFrom     string      `json:"validFrom"`
	ValidUntil    string      `json:"validUntil"`
	Units         int         `json:"units"`
	Cost          float64     `json:"cost"`
}

func (s *wireSnapshot) defaultPermit() *wirePermit {
	for i := range s.Permits {
		if s.Permits[i].IsDefault {
			return &s.Permits[i]
		}
	}
	if len(s.Permits) > 0 {
		return &s.Permits[0]
	}
	return nil
}

func (s *wireSnapshot) account(identifier string) provider.Account {
	account := provider.Account{Provider: Name, Identifier: identifier}
	if permit := s.defaultPermit(); permit != nil {
		account.BalanceMinutes = permit.Balance
	}
	return account
}

func (s *wireSnapshot) reservations(loc *time.Location) []provider.Reservation {
	permit := s.defaultPermit()
	if permit == nil {
		return nil
	}
	reservations := make([]provider.Reservation, 0, len(permit.Reservations))
	for _, entry := range permit.Reservations {
		reservations = append(reservations, provider.Reservation{
			ID:           entry.ReservationID.String(),
			LicensePlate: entry.LicensePlate,
			Name:         permit.LicensePlates[entry.LicensePlate],
			StartTime:    parseTime(entry.ValidFrom, loc),
			EndTime:      parseTime(entry.ValidUntil, loc),
			Units:        entry.Units,
			Cost:         entry.Cost,
		})
	}
	return reservations
}

// favorites lists the permit's known license plates, sorted by plate for a
// stable order.
func (s *wireSnapshot) favorites() []provider.Favorite {
	permit := s.defaultPermit()
	if permit == nil {
		return nil
	}
	plates := make([]string, 0, len(permit.LicensePlates))
	for plate := range permit.LicensePlates {
		plates = append(plates, plate)
	}
	sort.Strings(plates)
	favorites := make([]provider.Favorite, 0, len(plates))
	for _, plate := range plates {
		favorites = append(favorites, provider.Favorite{
			ID:           plate,
			LicensePlate: plate,
			Name:         permit.LicensePlates[plate],
		})
	}
	return favorites
}

func parseTime(value string, loc *time.Location) time.Time {
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
