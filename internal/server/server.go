// Package server exposes the REST API: the account overview, the municipality
// catalog, and reservation and favorite management.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/rhulsman/parking-monitor/internal/poller"
	"github.com/rhulsman/parking-monitor/internal/provider"
	"github.com/rhulsman/parking-monitor/internal/provider/registry"
	"github.com/rhulsman/parking-monitor/internal/schedule"
	"github.com/rhulsman/parking-monitor/internal/store"
)

// AutoEnd is the part of the auto-end manager the API needs for pre-flight
// validation of new reservations.
type AutoEnd interface {
	Enabled() bool
	Schedule() schedule.WeeklySchedule
}

type Server struct {
	http.Handler
	client   provider.Client
	poller   poller.Poller
	tracker  *store.Tracker
	autoEnd  AutoEnd
	location *time.Location
	logger   *slog.Logger

	lock    sync.RWMutex
	update  poller.Update
	updated bool
}

func New(client provider.Client, p poller.Poller, tracker *store.Tracker, autoEnd AutoEnd, location *time.Location, logger *slog.Logger) *Server {
	if location == nil {
		location = time.Local
	}
	s := Server{
		client:   client,
		poller:   p,
		tracker:  tracker,
		autoEnd:  autoEnd,
		location: location,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(100, time.Second))
	r.Use(s.logRequests)
	r.Route("/api", func(r chi.Router) {
		r.Get("/overview", s.overview)
		r.Get("/municipalities", s.municipalities)
		r.Post("/reservations", s.createReservation)
		r.Delete("/reservations/{id}", s.deleteReservation)
		r.Patch("/reservations/{id}", s.adjustReservation)
		r.Post("/favorites", s.createFavorite)
		r.Put("/favorites/{id}", s.updateFavorite)
		r.Delete("/favorites/{id}", s.deleteFavorite)
	})
	s.Handler = r
	return &s
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
		)
	})
}

// Run keeps the latest account snapshot for the overview endpoint.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Debug("started")
	defer s.logger.Debug("stopped")

	ch := s.poller.Subscribe()
	defer s.poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			s.lock.Lock()
			s.update = update
			s.updated = true
			s.lock.Unlock()
		}
	}
}

func (s *Server) latest() (poller.Update, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.update, s.updated
}

func (s *Server) overview(w http.ResponseWriter, _ *http.Request) {
	update, ok := s.latest()
	if !ok {
		s.poller.Refresh()
		writeError(w, http.StatusServiceUnavailable, "no account data yet")
		return
	}
	writeJSON(w, http.StatusOK, update)
}

func (s *Server) municipalities(w http.ResponseWriter, _ *http.Request) {
	reg, err := registry.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reg.Municipalities)
}

type reservationRequest struct {
	LicensePlate string    `json:"licensePlate"`
	Name         string    `json:"name"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
}

func (s *Server) createReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	plate := normalizeLicensePlate(req.LicensePlate)
	if plate == "" {
		writeError(w, http.StatusBadRequest, "license plate is required")
		return
	}
	start := req.StartTime
	if start.IsZero() {
		start = time.Now().UTC()
	}

	if s.autoEnd.Enabled() {
		if err := s.validateStartTime(r.Context(), start); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	end, err := s.resolveEndTime(r.Context(), start, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !end.IsZero() && !end.After(start) {
		writeError(w, http.StatusBadRequest, "end time must be after start time")
		return
	}

	id, err := s.client.CreateReservation(r.Context(), provider.ReservationRequest{
		LicensePlate: plate,
		Name:         strings.TrimSpace(req.Name),
		StartTime:    start,
		EndTime:      end,
	})
	if err != nil {
		s.writeProviderError(w, "could not create reservation", err)
		return
	}
	if id != "" {
		if err = s.tracker.Add(id); err != nil {
			s.logger.Error("failed to save reservation store", "err", err)
		}
	}
	s.poller.Refresh()
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// validateStartTime rejects reservations started between the end of the
// working window and the zone's closing time: they would be ended right away
// by the next trigger.
func (s *Server) validateStartTime(ctx context.Context, start time.Time) error {
	workingTo, workingToUTC, ok := schedule.ScheduledEndForStart(start.In(s.location), s.autoEnd.Schedule())
	if !ok {
		return nil
	}
	zoneEnd, err := s.client.FetchZoneEndTime(ctx, start)
	if err != nil || zoneEnd.IsZero() {
		return nil
	}
	if workingToUTC.Before(zoneEnd) && !start.Before(workingToUTC) && start.Before(zoneEnd) {
		return errors.New("start time is after the working window closed at " + workingTo.String())
	}
	return nil
}

// resolveEndTime fills in the zone's closing time when the provider requires
// an end time and none was given.
func (s *Server) resolveEndTime(ctx context.Context, start, end time.Time) (time.Time, error) {
	if !end.IsZero() || !s.client.RequiresEndTime() {
		return end, nil
	}
	zoneEnd, err := s.client.FetchZoneEndTime(ctx, start)
	if err != nil {
		s.logger.Debug("could not determine zone end time", "err", err)
		return time.Time{}, errors.New("could not determine zone end time")
	}
	if zoneEnd.IsZero() {
		return time.Time{}, errors.New("could not determine zone end time")
	}
	return zoneEnd, nil
}

func (s *Server) deleteReservation(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "reservation id is required")
		return
	}
	if err := s.client.DeleteReservation(r.Context(), id); err != nil {
		s.writeProviderError(w, "could not delete reservation", err)
		return
	}
	if err := s.tracker.Remove(id); err != nil {
		s.logger.Error("failed to save reservation store", "err", err)
	}
	s.poller.Refresh()
	w.WriteHeader(http.StatusNoContent)
}

type adjustRequest struct {
	EndTime time.Time `json:"endTime"`
}

func (s *Server) adjustReservation(w http.ResponseWriter, r *http.Request) {
	if !s.client.SupportsReservationAdjust() {
		writeError(w, http.StatusNotImplemented, "provider does not support adjusting reservations")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.EndTime.IsZero() {
		writeError(w, http.StatusBadRequest, "end time is required")
		return
	}

	reservation, found := s.findReservation(r.Context(), id)
	if !found {
		writeError(w, http.StatusBadRequest, "reservation not available")
		return
	}
	if reservation.StartTime.IsZero() {
		writeError(w, http.StatusBadGateway, "reservation start time not available")
		return
	}
	if !req.EndTime.After(reservation.StartTime) {
		writeError(w, http.StatusBadRequest, "end time must be after start time")
		return
	}
	if zoneEnd, err := s.client.FetchZoneEndTime(r.Context(), reservation.StartTime); err == nil && !zoneEnd.IsZero() {
		if !req.EndTime.Before(zoneEnd) {
			writeError(w, http.StatusBadRequest, "end time must be before the zone end time")
			return
		}
	}
	if !reservation.EndTime.IsZero() && reservation.EndTime.Truncate(time.Second).Equal(req.EndTime.Truncate(time.Second)) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := s.client.AdjustReservationEndTime(r.Context(), id, req.EndTime); err != nil {
		s.writeProviderError(w, "could not adjust reservation", err)
		return
	}
	s.poller.Refresh()
	w.WriteHeader(http.StatusNoContent)
}

// findReservation checks the latest snapshot first and falls back to a fresh
// fetch.
func (s *Server) findReservation(ctx context.Context, id string) (provider.Reservation, bool) {
	if update, ok := s.latest(); ok {
		if reservation, found := update.GetReservation(id); found {
			return reservation, true
		}
	}
	reservations, err := s.client.FetchReservations(ctx)
	if err != nil {
		return provider.Reservation{}, false
	}
	for _, reservation := range reservations {
		if reservation.ID == id {
			return reservation, true
		}
	}
	return provider.Reservation{}, false
}

type favoriteRequest struct {
	Name         string `json:"name"`
	LicensePlate string `json:"licensePlate"`
}

func (s *Server) createFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "favorite name is required")
		return
	}
	plate := normalizeLicensePlate(req.LicensePlate)
	if plate == "" {
		writeError(w, http.StatusBadRequest, "license plate is required")
		return
	}
	if err := s.client.CreateFavorite(r.Context(), name, plate); err != nil {
		s.writeProviderError(w, "could not create favorite", err)
		return
	}
	s.poller.Refresh()
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) updateFavorite(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	plate := normalizeLicensePlate(req.LicensePlate)
	if name == "" || plate == "" {
		writeError(w, http.StatusBadRequest, "favorite name and license plate are required")
		return
	}
	if err := s.client.UpdateFavorite(r.Context(), id, name, plate); err != nil {
		s.writeProviderError(w, "could not update favorite", err)
		return
	}
	s.poller.Refresh()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteFavorite(w http.ResponseWriter, r *http.Request) {
	if !s.client.SupportsFavoriteDeletion() {
		writeError(w, http.StatusNotImplemented, "provider does not support deleting favorites")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := s.client.DeleteFavorite(r.Context(), id); err != nil {
		s.writeProviderError(w, "could not delete favorite", err)
		return
	}
	s.poller.Refresh()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeProviderError(w http.ResponseWriter, msg string, err error) {
	s.logger.Debug(msg, "err", err)
	writeError(w, statusFor(err), msg+": "+provider.Summary(err))
}

func statusFor(err error) int {
	var rateLimitErr *provider.RateLimitError
	switch {
	case errors.Is(err, provider.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, provider.ErrConnection), errors.As(err, &rateLimitErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func normalizeLicensePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	return strings.ReplaceAll(plate, " ", "")
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
