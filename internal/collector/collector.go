package collector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhulsman/parking-monitor/internal/poller"
)

var (
	parkingBalanceMinutes = prometheus.NewDesc(
		prometheus.BuildFQName("parking", "account", "balance_minutes"),
		"Remaining visitor parking balance in minutes",
		[]string{"provider"},
		nil,
	)
	parkingReservationCount = prometheus.NewDesc(
		prometheus.BuildFQName("parking", "", "reservations"),
		"Number of active visitor parking reservations",
		[]string{"provider"},
		nil,
	)
	parkingFavoriteCount = prometheus.NewDesc(
		prometheus.BuildFQName("parking", "", "favorites"),
		"Number of stored license plates",
		[]string{"provider"},
		nil,
	)
	parkingReservationEndTime = prometheus.NewDesc(
		prometheus.BuildFQName("parking", "reservation", "end_timestamp_seconds"),
		"End time of an active reservation as a unix timestamp. Zero when the provider did not report one",
		[]string{"provider", "license_plate"},
		nil,
	)
	parkingLastPoll = prometheus.NewDesc(
		prometheus.BuildFQName("parking", "", "last_poll_timestamp_seconds"),
		"Time of the last successful account poll as a unix timestamp",
		[]string{"provider"},
		nil,
	)
)

type Collector struct {
	Poller     poller.Poller
	Logger     *slog.Logger
	lock       sync.RWMutex
	lastUpdate *poller.Update
}

func (c *Collector) Run(ctx context.Context) error {
	c.Logger.Debug("started")
	defer c.Logger.Debug("stopped")

	ch := c.Poller.Subscribe()
	defer c.Poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			c.lock.Lock()
			c.lastUpdate = &update
			c.lock.Unlock()
		}
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- parkingBalanceMinutes
	ch <- parkingReservationCount
	ch <- parkingFavoriteCount
	ch <- parkingReservationEndTime
	ch <- parkingLastPoll
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.lastUpdate == nil {
		return
	}
	provider := c.lastUpdate.Provider
	ch <- prometheus.MustNewConstMetric(parkingBalanceMinutes, prometheus.GaugeValue, float64(c.lastUpdate.Account.BalanceMinutes), provider)
	ch <- prometheus.MustNewConstMetric(parkingReservationCount, prometheus.GaugeValue, float64(len(c.lastUpdate.Reservations)), provider)
	ch <- prometheus.MustNewConstMetric(parkingFavoriteCount, prometheus.GaugeValue, float64(len(c.lastUpdate.Favorites)), provider)
	for _, reservation := range c.lastUpdate.Reservations {
		var end float64
		if !reservation.EndTime.IsZero() {
			end = float64(reservation.EndTime.Unix())
		}
		ch <- prometheus.MustNewConstMetric(parkingReservationEndTime, prometheus.GaugeValue, end, provider, reservation.LicensePlate)
	}
	ch <- prometheus.MustNewConstMetric(parkingLastPoll, prometheus.GaugeValue, float64(c.lastUpdate.Timestamp.Unix()), provider)
}
