package thehague

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhulsman/parking-monitor/internal/provider"
)

func TestClient_New(t *testing.T) {
	_, err := New("", "secret", "", nil)
	assert.Error(t, err)
	c, err := New("user", "secret", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://parkeren.denhaag.nl/api/v1", c.baseURL)
	c, err = New("user", "secret", "parkeren.example.org", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://parkeren.example.org/api/v1", c.baseURL)
}

func TestClient_FetchAll(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s)
	defer server.Close()
	c := newTestClient(t, server)

	ctx := context.Background()
	account, reservations, favorites, err := c.FetchAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, Name, account.Provider)
	assert.Equal(t, 300, account.BalanceMinutes)
	require.NotNil(t, account.Zone)
	assert.Equal(t, "Centrum", account.Zone.Name)
	assert.Equal(t, time.Date(2024, time.November, 18, 9, 0, 0, 0, time.UTC), account.Zone.StartTime.UTC())
	assert.Equal(t, time.Date(2024, time.November, 18, 18, 0, 0, 0, time.UTC), account.Zone.EndTime.UTC())

	require.Len(t, reservations, 2)
	// snake_case payload
	assert.Equal(t, "1001", reservations[0].ID)
	assert.Equal(t, "AB-12-CD", reservations[0].LicensePlate)
	assert.Equal(t, 60, reservations[0].Units)
	// camelCase payload with an integer id
	assert.Equal(t, "1002", reservations[1].ID)
	assert.Equal(t, "XY-34-ZW", reservations[1].LicensePlate)
	assert.Equal(t, "guests", reservations[1].Name)

	require.Len(t, favorites, 1)
	assert.Equal(t, "AB-12-CD", favorites[0].LicensePlate)

	// the bearer token is reused across calls
	assert.Equal(t, int32(1), s.logins.Load())
}

func TestClient_Login(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s)
	defer server.Close()

	c := newTestClient(t, server)
	assert.NoError(t, c.Login(context.Background()))

	c = newTestClient(t, server)
	c.password = "wrong"
	err := c.Login(context.Background())
	assert.ErrorIs(t, err, provider.ErrAuthentication)
}

func TestClient_TokenRevoked(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s)
	defer server.Close()
	c := newTestClient(t, server)

	ctx := context.Background()
	_, err := c.FetchAccount(ctx)
	require.NoError(t, err)

	// revoke the token server-side. the client gets a 401, drops its token
	// and logs in again on the next call.
	s.token.Store("renewed")
	_, err = c.FetchAccount(ctx)
	assert.ErrorIs(t, err, provider.ErrAuthentication)
	_, err = c.FetchAccount(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), s.logins.Load())
}

func TestClient_RateLimited(t *testing.T) {
	s := newTestServer()
	s.rateLimited = true
	server := httptest.NewServer(s)
	defer server.Close()
	c := newTestClient(t, server)

	_, err := c.FetchAccount(context.Background())
	var rateLimitErr *provider.RateLimitError
	require.ErrorAs(t, err, &rateLimitErr)
	assert.Equal(t, 30*time.Second, rateLimitErr.RetryAfter)
}

func TestClient_Reservations(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s)
	defer server.Close()
	c := newTestClient(t, server)

	ctx := context.Background()
	id, err := c.CreateReservation(ctx, provider.ReservationRequest{
		LicensePlate: "AB-12-CD",
		StartTime:    time.Date(2024, time.November, 18, 10, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2024, time.November, 18, 18, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "2001", id)
	assert.Equal(t, "AB-12-CD", s.lastCreate["license_plate"])
	assert.Equal(t, "2024-11-18T18:00:00Z", s.lastCreate["valid_until"])

	assert.NoError(t, c.AdjustReservationEndTime(ctx, "1001", time.Date(2024, time.November, 18, 17, 0, 0, 0, time.UTC)))
	assert.NoError(t, c.DeleteReservation(ctx, "1001"))
	assert.Error(t, c.DeleteReservation(ctx, "9999"))
}

func TestClient_Favorites(t *testing.T) {
	s := newTestServer()
	server := httptest.NewServer(s)
	defer server.Close()
	c := newTestClient(t, server)

	ctx := context.Background()
	assert.NoError(t, c.CreateFavorite(ctx, "home", "AB-12-CD"))
	assert.NoError(t, c.UpdateFavorite(ctx, "501", "work", "AB-12-CD"))
	assert.NoError(t, c.DeleteFavorite(ctx, "501"))
}

func TestClient_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, server)
	server.Close()

	err := c.Login(context.Background())
	assert.ErrorIs(t, err, provider.ErrConnection)
}

func Test_parseTime(t *testing.T) {
	amsterdam, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{"rfc3339", "2024-11-18T18:00:00+01:00", time.Date(2024, time.November, 18, 17, 0, 0, 0, time.UTC)},
		{"naive", "2024-11-18T18:00:00", time.Date(2024, time.November, 18, 17, 0, 0, 0, time.UTC)},
		{"empty", "", time.Time{}},
		{"garbage", "not a time", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseTime(tt.value, amsterdam).UTC())
		})
	}
}

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := New("user@example.com", "secret", "", server.Client())
	require.NoError(t, err)
	c.baseURL = server.URL + "/api/v1"
	c.location = time.UTC
	return c
}

// testServer serves a minimal rendition of the portal API. Reservation
// payloads deliberately mix the portal's field name variants.
type testServer struct {
	logins      atomic.Int32
	token       atomic.Value
	rateLimited bool
	lastCreate  map[string]any
}

func newTestServer() *testServer {
	s := &testServer{}
	s.token.Store("test-token")
	return s
}

func (s *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v1/login" {
		s.login(w, r)
		return
	}
	if s.rateLimited {
		w.Header().Set("Retry-After", "30")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+s.token.Load().(string) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	switch r.Method + " " + r.URL.Path {
	case "GET /api/v1/account":
		_, _ = w.Write([]byte(`{
			"debit_minutes": 300,
			"zone_name": "Centrum",
			"zone_start_time": "2024-11-18T09:00:00Z",
			"zone_end_time": "2024-11-18T18:00:00Z"
		}`))
	case "GET /api/v1/reservations":
		_, _ = w.Write([]byte(`[
			{"reservation_id": "1001", "license_plate": "AB-12-CD", "valid_from": "2024-11-18T10:00:00Z", "valid_until": "2024-11-18T18:00:00Z", "units": 60},
			{"id": 1002, "licenseplate": "XY-34-ZW", "label": "guests", "start": "2024-11-18T11:00:00Z", "end": "2024-11-18T12:00:00Z"}
		]`))
	case "GET /api/v1/favorites":
		_, _ = w.Write([]byte(`[{"favorite_id": 501, "plate": "AB-12-CD", "name": "home"}]`))
	case "POST /api/v1/reservations":
		s.lastCreate = make(map[string]any)
		_ = json.NewDecoder(r.Body).Decode(&s.lastCreate)
		_, _ = w.Write([]byte(`{"reservationid": 2001}`))
	case "DELETE /api/v1/reservations/1001", "PUT /api/v1/reservations/1001",
		"POST /api/v1/favorites", "PUT /api/v1/favorites/501", "DELETE /api/v1/favorites/501":
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (s *testServer) login(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil || credentials.Password != "secret" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.logins.Add(1)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":      s.token.Load().(string),
		"expires_in": 3600,
	})
}
