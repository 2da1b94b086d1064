package thehague

import (
	"time"

	"github.com/rhulsman/parking-monitor/internal/provider"
)

// The portal's payloads are not consistent about field names: older endpoints
// use snake_case, newer ones camelCase, and reservation ids appear under four
// different keys. The wire types list every alias and coalesce on conversion.
// Note that encoding/json matches keys case-insensitively, so one tag covers
// e.g. both "ReservationID" and "reservationId" variants per casing family.

type wireAccount struct {
	DebitMinutes  int       `json:"debit_minutes"`
	Identifier    string    `json:"identifier"`
	Zone          *wireZone `json:"zone"`
	ZoneName      string    `json:"zone_name"`
	ZoneNameAlt   string    `json:"zonename"`
	ZoneStart     string    `json:"zone_start_time"`
	ZoneStartAlt  string    `json:"zonestarttime"`
	ZoneEnd       string    `json:"zone_end_time"`
	ZoneEndAlt    string    `json:"zoneendtime"`
}

type wireZone struct {
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (w wireAccount) account(loc *time.Location) provider.Account {
	account := provider.Account{
		Provider:       Name,
		Identifier:     w.Identifier,
		BalanceMinutes: w.DebitMinutes,
	}
	zone := provider.Zone{
		Name:      first(w.ZoneName, w.ZoneNameAlt),
		StartTime: parseTime(first(w.ZoneStart, w.ZoneStartAlt), loc),
		EndTime:   parseTime(first(w.ZoneEnd, w.ZoneEndAlt), loc),
	}
	if w.Zone != nil {
		zone = provider.Zone{
			Name:      first(w.Zone.Name, zone.Name),
			StartTime: firstTime(parseTime(w.Zone.StartTime, loc), zone.StartTime),
			EndTime:   firstTime(parseTime(w.Zone.EndTime, loc), zone.EndTime),
		}
	}
	if zone != (provider.Zone{}) {
		account.Zone = &zone
	}
	return account
}

type wireReservation struct {
	ID               provider.ID `json:"id"`
	ReservationID    provider.ID `json:"reservation_id"`
	ReservationIDAlt provider.ID `json:"reservationid"`
	LicensePlate     string      `json:"license_plate"`
	LicensePlateAlt  string      `json:"licenseplate"`
	Plate            string      `json:"plate"`
	Label            string      `json:"label"`
	NameField        string      `json:"name"`
	StartTime        string      `json:"start_time"`
	ValidFrom        string      `json:"valid_from"`
	ValidFromAlt     string      `json:"validfrom"`
	Start            string      `json:"start"`
	EndTime          string      `json:"end_time"`
	ValidUntil       string      `json:"valid_until"`
	ValidUntilAlt    string      `json:"validuntil"`
	End              string      `json:"end"`
	Units            int         `json:"units"`
	Minutes          int         `json:"minutes"`
	Duration         int         `json:"duration"`
	Cost             float64     `json:"cost"`
	Price            float64     `json:"price"`
	Amount           float64     `json:"amount"`
}

func (w wireReservation) id() string {
	return first(w.ID.String(), w.ReservationID.String(), w.ReservationIDAlt.String())
}

func (w wireReservation) reservation(loc *time.Location) provider.Reservation {
	return provider.Reservation{
		ID:           w.id(),
		LicensePlate: first(w.LicensePlate, w.LicensePlateAlt, w.Plate),
		Name:         first(w.NameField, w.Label),
		StartTime:    parseTime(first(w.StartTime, w.ValidFrom, w.ValidFromAlt, w.Start), loc),
		EndTime:      parseTime(first(w.EndTime, w.ValidUntil, w.ValidUntilAlt, w.End), loc),
		Units:        firstInt(w.Units, w.Minutes, w.Duration),
		Cost:         firstFloat(w.Cost, w.Price, w.Amount),
	}
}

type wireFavorite struct {
	ID              provider.ID `json:"id"`
	FavoriteID      provider.ID `json:"favorite_id"`
	FavoriteIDAlt   provider.ID `json:"favoriteid"`
	LicensePlate    string      `json:"license_plate"`
	LicensePlateAlt string      `json:"licenseplate"`
	Plate           string      `json:"plate"`
	Label           string      `json:"label"`
	NameField       string      `json:"name"`
}

func (w wireFavorite) favorite() provider.Favorite {
	return provider.Favorite{
		ID:           first(w.ID.String(), w.FavoriteID.String(), w.FavoriteIDAlt.String()),
		LicensePlate: first(w.LicensePlate, w.LicensePlateAlt, w.Plate),
		Name:         first(w.NameField, w.Label),
	}
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstFloat(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstTime(values ...time.Time) time.Time {
	for _, v := range values {
		if !v.IsZero() {
			return v
		}
	}
	return time.Time{}
}
