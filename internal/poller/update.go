package poller

import (
	"log/slog"
	"time"

	"github.com/clambin/go-common/set"

	"github.com/rhulsman/parking-monitor/internal/provider"
)

// Update is a point-in-time snapshot of the parking account.
type Update struct {
	Provider     string
	Account      provider.Account
	Reservations []provider.Reservation
	Favorites    []provider.Favorite
	Timestamp    time.Time
}

// ReservationIDs returns the ids of all active reservations.
func (update Update) ReservationIDs() set.Set[string] {
	ids := set.Create[string]()
	for _, reservation := range update.Reservations {
		ids.Add(reservation.ID)
	}
	return ids
}

// GetReservation looks up an active reservation by id.
func (update Update) GetReservation(id string) (provider.Reservation, bool) {
	for _, reservation := range update.Reservations {
		if reservation.ID == id {
			return reservation, true
		}
	}
	return provider.Reservation{}, false
}

// GetFavorite looks up a favorite by license plate.
func (update Update) GetFavorite(plate string) (provider.Favorite, bool) {
	for _, favorite := range update.Favorites {
		if favorite.LicensePlate == plate {
			return favorite, true
		}
	}
	return provider.Favorite{}, false
}

func (update Update) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", update.Provider),
		slog.Int("reservations", len(update.Reservations)),
		slog.Int("favorites", len(update.Favorites)),
		slog.Int("balance", update.Account.BalanceMinutes),
	)
}
