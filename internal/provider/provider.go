// Package provider defines the capability interface for municipal visitor
// parking back-ends, along with the canonical data model shared by the rest
// of the application. Each back-end lives in its own sub-package and maps its
// wire format onto these types.
package provider

import (
	"context"
	"time"
)

// Client is the uniform interface to a visitor parking provider. Back-ends
// that don't offer an operation return ErrUnsupported.
type Client interface {
	// Name returns the provider identifier (e.g. "thehague").
	Name() string
	// RequiresEndTime reports whether reservations must include an end time.
	RequiresEndTime() bool
	// SupportsFavoriteDeletion reports whether favorites can be deleted.
	SupportsFavoriteDeletion() bool
	// SupportsReservationAdjust reports whether reservation end times can be changed.
	SupportsReservationAdjust() bool

	// Login validates the credentials with a lightweight request.
	Login(ctx context.Context) error
	// FetchAll fetches account, reservations and favorites in one pass.
	FetchAll(ctx context.Context) (Account, []Reservation, []Favorite, error)
	FetchAccount(ctx context.Context) (Account, error)
	FetchReservations(ctx context.Context) ([]Reservation, error)
	FetchFavorites(ctx context.Context) ([]Favorite, error)
	// FetchZoneEndTime returns the parking zone's closing time covering start.
	FetchZoneEndTime(ctx context.Context, start time.Time) (time.Time, error)

	CreateReservation(ctx context.Context, req ReservationRequest) (string, error)
	DeleteReservation(ctx context.Context, id string) error
	AdjustReservationEndTime(ctx context.Context, id string, end time.Time) error

	CreateFavorite(ctx context.Context, name, licensePlate string) error
	UpdateFavorite(ctx context.Context, id, name, licensePlate string) error
	DeleteFavorite(ctx context.Context, id string) error
}

// Account holds the provider account state.
type Account struct {
	Provider       string `json:"provider"`
	Identifier     string `json:"identifier,omitempty"`
	BalanceMinutes int    `json:"balanceMinutes"`
	Zone           *Zone  `json:"zone,omitempty"`
}

// Zone describes the municipal parking zone's operating window.
type Zone struct {
	Name      string    `json:"name,omitempty"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Reservation is a visitor parking reservation. StartTime and EndTime are
// zero when the provider did not report them.
type Reservation struct {
	ID           string    `json:"id"`
	LicensePlate string    `json:"licensePlate"`
	Name         string    `json:"name,omitempty"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Units        int       `json:"units,omitempty"`
	Cost         float64   `json:"cost,omitempty"`
}

// Favorite is a stored license plate.
type Favorite struct {
	ID           string `json:"id"`
	LicensePlate string `json:"licensePlate"`
	Name         string `json:"name,omitempty"`
}

// ReservationRequest holds the parameters for a new reservation. A zero
// EndTime leaves the end time to the provider, where supported.
type ReservationRequest struct {
	LicensePlate string
	Name         string
	StartTime    time.Time
	EndTime      time.Time
}
