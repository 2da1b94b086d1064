package collector

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhulsman/parking-monitor/internal/poller"
	"github.com/rhulsman/parking-monitor/internal/provider"
)

func TestCollector_Collect(t *testing.T) {
	c := Collector{Logger: slog.Default()}

	update := poller.Update{
		Provider: "thehague",
		Account:  provider.Account{Provider: "thehague", BalanceMinutes: 480},
		Reservations: []provider.Reservation{
			{ID: "1001", LicensePlate: "AB-12-CD", EndTime: time.Unix(1700000000, 0)},
			{ID: "1002", LicensePlate: "EF-34-GH"},
		},
		Favorites: []provider.Favorite{{ID: "AB-12-CD", LicensePlate: "AB-12-CD"}},
		Timestamp: time.Unix(1699999000, 0),
	}
	c.lastUpdate = &update

	require.NoError(t, testutil.CollectAndCompare(&c, strings.NewReader(`
# HELP parking_account_balance_minutes Remaining visitor parking balance in minutes
# TYPE parking_account_balance_minutes gauge
parking_account_balance_minutes{provider="thehague"} 480

# HELP parking_reservations Number of active visitor parking reservations
# TYPE parking_reservations gauge
parking_reservations{provider="thehague"} 2

# HELP parking_favorites Number of stored license plates
# TYPE parking_favorites gauge
parking_favorites{provider="thehague"} 1

# HELP parking_reservation_end_timestamp_seconds End time of an active reservation as a unix timestamp. Zero when the provider did not report one
# TYPE parking_reservation_end_timestamp_seconds gauge
parking_reservation_end_timestamp_seconds{license_plate="AB-12-CD",provider="thehague"} 1.7e+09
parking_reservation_end_timestamp_seconds{license_plate="EF-34-GH",provider="thehague"} 0

# HELP parking_last_poll_timestamp_seconds Time of the last successful account poll as a unix timestamp
# TYPE parking_last_poll_timestamp_seconds gauge
parking_last_poll_timestamp_seconds{provider="thehague"} 1.699999e+09
`)))
}

func TestCollector_Collect_NoUpdate(t *testing.T) {
	c := Collector{Logger: slog.Default()}
	assert.Zero(t, testutil.CollectAndCount(&c))
}

type fakePoller struct {
	ch chan poller.Update
}

func (f *fakePoller) Subscribe() chan poller.Update    { return f.ch }
func (f *fakePoller) Unsubscribe(_ chan poller.Update) {}
func (f *fakePoller) Refresh()                         {}

func TestCollector_Run(t *testing.T) {
	p := &fakePoller{ch: make(chan poller.Update)}
	c := Collector{Poller: p, Logger: slog.Default()}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- c.Run(ctx)
	}()

	p.ch <- poller.Update{Provider: "thehague", Timestamp: time.Unix(1699999000, 0)}
	assert.Eventually(t, func() bool {
		return testutil.CollectAndCount(&c) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-errCh)
}
