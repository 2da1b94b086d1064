// Package testtools provides a fake provider client for tests.
package testtools

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rhulsman/parking-monitor/internal/provider"
)

var _ provider.Client = &FakeClient{}

// FakeClient implements provider.Client against in-memory state. All methods
// are safe for concurrent use.
type FakeClient struct {
	ProviderName    string
	RequiresEnd     bool
	CanDeleteFav    bool
	CanAdjust       bool
	ZoneEndTime     time.Time
	LoginErr        error
	FetchErr        error
	CreateErr       error
	DeleteErr       error
	DeleteErrFor    map[string]error
	AdjustErr       error
	lock            sync.Mutex
	nextID          int
	account         provider.Account
	reservations    []provider.Reservation
	favorites       []provider.Favorite
	logins          int
	deleted         []string
	fetchCount      int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		ProviderName: "fake",
		RequiresEnd:  true,
		CanDeleteFav: true,
		CanAdjust:    true,
		nextID:       1000,
		account:      provider.Account{Provider: "fake", Identifier: "user", BalanceMinutes: 600},
	}
}

func (f *FakeClient) Name() string { return f.ProviderName }
func (f *FakeClient) RequiresEndTime() bool { return f.RequiresEnd }
func (f *FakeClient) SupportsFavoriteDeletion() bool { return f.CanDeleteFav }
func (f *FakeClient) SupportsReservationAdjust() bool { return f.CanAdjust }

func (f *FakeClient) Login(_ context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.logins++
	return f.LoginErr
}

func (f *FakeClient) Logins() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.logins
}

func (f *FakeClient) SetAccount(account provider.Account) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.account = account
}

func (f *FakeClient) SetReservations(reservations ...provider.Reservation) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.reservations = reservations
}

func (f *FakeClient) SetFavorites(favorites ...provider.Favorite) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.favorites = favorites
}

func (f *FakeClient) Deleted() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *FakeClient) FetchCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.fetchCount
}

func (f *FakeClient) FetchAll(ctx context.Context) (provider.Account, []provider.Reservation, []provider.Favorite, error) {
	account, err := f.FetchAccount(ctx)
	if err != nil {
		return provider.Account{}, nil, nil, err
	}
	reservations, err := f.FetchReservations(ctx)
	if err != nil {
		return provider.Account{}, nil, nil, err
	}
	favorites, err := f.FetchFavorites(ctx)
	if err != nil {
		return provider.Account{}, nil, nil, err
	}
	return account, reservations, favorites, nil
}

func (f *FakeClient) FetchAccount(_ context.Context) (provider.Account, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.FetchErr != nil {
		return provider.Account{}, f.FetchErr
	}
	return f.account, nil
}

func (f *FakeClient) FetchReservations(_ context.Context) ([]provider.Reservation, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.fetchCount++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return append([]provider.Reservation(nil), f.reservations...), nil
}

func (f *FakeClient) FetchFavorites(_ context.Context) ([]provider.Favorite, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return append([]provider.Favorite(nil), f.favorites...), nil
}

func (f *FakeClient) FetchZoneEndTime(_ context.Context, _ time.Time) (time.Time, error) {
	return f.ZoneEndTime, nil
}

func (f *FakeClient) CreateReservation(_ context.Context, req provider.ReservationRequest) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.nextID++
	id := strconv.Itoa(f.nextID)
	f.reservations = append(f.reservations, provider.Reservation{
		ID:           id,
		LicensePlate: req.LicensePlate,
		Name:         req.Name,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
	})
	return id, nil
}

func (f *FakeClient) DeleteReservation(_ context.Context, id string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err, ok := f.DeleteErrFor[id]; ok {
		return err
	}
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.deleted = append(f.deleted, id)
	kept := f.reservations[:0]
	for _, reservation := range f.reservations {
		if reservation.ID != id {
			kept = append(kept, reservation)
		}
	}
	f.reservations = kept
	return nil
}

func (f *FakeClient) AdjustReservationEndTime(_ context.Context, id string, endTime time.Time) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.AdjustErr != nil {
		return f.AdjustErr
	}
	for i, reservation := range f.reservations {
		if reservation.ID == id {
			f.reservations[i].EndTime = endTime
			return nil
		}
	}
	return provider.ErrConnection
}

func (f *FakeClient) CreateFavorite(_ context.Context, name, plate string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.favorites = append(f.favorites, provider.Favorite{ID: plate, Name: name, LicensePlate: plate})
	return nil
}

func (f *FakeClient) UpdateFavorite(_ context.Context, id, name, plate string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	for i, favorite := range f.favorites {
		if favorite.ID == id {
			f.favorites[i].Name = name
			f.favorites[i].LicensePlate = plate
			return nil
		}
	}
	return provider.ErrConnection
}

func (f *FakeClient) DeleteFavorite(_ context.Context, id string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	kept := f.favorites[:0]
	for _, favorite := range f.favorites {
		if favorite.ID != id {
			kept = append(kept, favorite)
		}
	}
	f.favorites = kept
	return nil
}
