// Package poller retrieves the parking account state at regular intervals and
// fans it out to all subscribers.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rhulsman/parking-monitor/internal/provider"
)

type Poller interface {
	Subscribe() chan Update
	Unsubscribe(ch chan Update)
	Refresh()
}

var _ Poller = &AccountPoller{}

type AccountPoller struct {
	client   provider.Client
	interval time.Duration
	logger   *slog.Logger
	refresh  chan struct{}
	lock     sync.RWMutex
	clients  map[chan Update]struct{}
}

func New(client provider.Client, interval time.Duration, logger *slog.Logger) *AccountPoller {
	return &AccountPoller{
		client:   client,
		interval: interval,
		logger:   logger,
		refresh:  make(chan struct{}),
		clients:  make(map[chan Update]struct{}),
	}
}

func (p *AccountPoller) Run(ctx context.Context) error {
	p.logger.Debug("started", slog.Duration("interval", p.interval))
	defer p.logger.Debug("stopped")

	timer := time.NewTicker(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-p.refresh:
		}

		if err := p.poll(ctx); err != nil {
			p.logger.Error("failed to get account state", slog.Any("err", err))
		}
	}
}

// Refresh triggers an immediate poll.
func (p *AccountPoller) Refresh() {
	p.refresh <- struct{}{}
}

func (p *AccountPoller) poll(ctx context.Context) error {
	start := time.Now()
	account, reservations, favorites, err := p.client.FetchAll(ctx)
	if err != nil {
		return err
	}
	p.publish(Update{
		Provider:     p.client.Name(),
		Account:      account,
		Reservations: reservations,
		Favorites:    favorites,
		Timestamp:    time.Now(),
	})
	p.logger.Debug("poll completed",
		slog.Int("reservations", len(reservations)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Subscribe registers the caller and returns a new channel on which it will receive updates.
func (p *AccountPoller) Subscribe() chan Update {
	p.lock.Lock()
	defer p.lock.Unlock()
	ch := make(chan Update)
	p.clients[ch] = struct{}{}
	p.logger.Debug("subscriber added", slog.Int("subscribers", len(p.clients)))
	return ch
}

// Unsubscribe removes the registered client/channel.
func (p *AccountPoller) Unsubscribe(ch chan Update) {
	p.lock.Lock()
	defer p.lock.Unlock()
	delete(p.clients, ch)
	p.logger.Debug("subscriber removed", slog.Int("subscribers", len(p.clients)))
}

func (p *AccountPoller) publish(update Update) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	for ch := range p.clients {
		ch <- update
	}
}
