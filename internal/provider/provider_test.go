package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"authentication", fmt.Errorf("login: %w", ErrAuthentication), "authentication failed"},
		{"connection", fmt.Errorf("%w: dial tcp: refused", ErrConnection), "cannot connect"},
		{"unsupported", fmt.Errorf("delete favorite: %w", ErrUnsupported), "not supported"},
		{"rate limited", &RateLimitError{RetryAfter: 30 * time.Second}, "rate limit exceeded"},
		{"other", errors.New("500 Internal Server Error"), "500 Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.err))
		})
	}
}

func TestRateLimitError_Error(t *testing.T) {
	assert.Equal(t, "rate limit exceeded", (&RateLimitError{}).Error())
	assert.Equal(t, "rate limit exceeded (retry after 30s)", (&RateLimitError{RetryAfter: 30 * time.Second}).Error())
}

func TestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"string", `{"id":"1001"}`, "1001"},
		{"padded string", `{"id":" 1001 "}`, "1001"},
		{"integer", `{"id":1001}`, "1001"},
		{"null", `{"id":null}`, ""},
		{"absent", `{}`, ""},
		{"float", `{"id":10.5}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var record struct {
				ID ID `json:"id"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &record))
			assert.Equal(t, tt.want, record.ID.String())
		})
	}
}

func TestInstrumentedClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	client := InstrumentedClient("thehague", registry)
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, metricFamilies)
}
