package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pawbook/appointment-service/internal/appointment"
	"github.com/pawbook/appointment-service/internal/audit"
	"github.com/pawbook/appointment-service/internal/overlay"
)

// Server holds the shared pieces of the request path. The cache overlay is
// shared across requests; the authorization overlay is built per request
// around the caller's principal.
type Server struct {
	base     appointment.API // cache overlay over the service
	resolver overlay.OwnershipResolver
	auditor  audit.Recorder
	logger   zerolog.Logger
}

func NewServer(base appointment.API, resolver overlay.OwnershipResolver, auditor audit.Recorder, logger zerolog.Logger) *Server {
	return &Server{
		base:     base,
		resolver: resolver,
		auditor:  auditor,
		logger:   logger,
	}
}

// principalFrom trusts the identity headers set by the upstream gateway.
// Token verification happens before requests reach this service.
func principalFrom(r *http.Request) (overlay.Principal, error) {
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		return overlay.Principal{}, fmt.Errorf("missing or invalid X-User-ID header")
	}

	role := appointment.Role(r.Header.Get("X-User-Role"))
	switch role {
	case appointment.RoleAdmin, appointment.RoleVet, appointment.RoleAssistant, appointment.RoleOwner:
	default:
		return overlay.Principal{}, fmt.Errorf("missing or invalid X-User-Role header")
	}

	return overlay.Principal{UserID: userID, Role: role}, nil
}

// apiFor composes the per-caller view: authorization around the shared
// cached service.
func (s *Server) apiFor(w http.ResponseWriter, r *http.Request) (appointment.API, bool) {
	principal, err := principalFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return nil, false
	}

	return overlay.Compose(s.base, overlay.Options{
		Principal: &principal,
		Resolver:  s.resolver,
		Auditor:   s.auditor,
		Logger:    s.logger,
	}), true
}

func (s *Server) createAppointment(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.apiFor(w, r)
	if !ok {
		return
	}

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	petID, err := uuid.Parse(req.PetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_pet_id", "pet_id must be a valid UUID")
		return
	}
	clinicianID, err := uuid.Parse(req.ClinicianID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
		return
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
		return
	}
	if req.ScheduledAt.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduled_at is required (RFC 3339)")
		return
	}

	appt, err := svc.Create(r.Context(), appointment.CreateInput{
		PetID:       petID,
		ClinicianID: clinicianID,
		ServiceID:   serviceID,
		ScheduledAt: req.ScheduledAt,
		Reason:      req.Reason,
		Urgent:      req.Urgent,
	}, uuid.Nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(appt))
}

func (s *Server) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.apiFor(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewTime.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "new_time is required (RFC 3339)")
		return
	}

	appt, err := svc.Reschedule(r.Context(), id, req.NewTime, uuid.Nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (s *Server) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, func(svc appointment.API, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Cancel(r.Context(), id, uuid.Nil)
	})
}

func (s *Server) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, func(svc appointment.API, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Confirm(r.Context(), id, uuid.Nil)
	})
}

func (s *Server) startAppointment(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, func(svc appointment.API, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Start(r.Context(), id, uuid.Nil)
	})
}

func (s *Server) completeAppointment(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.apiFor(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req CompleteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
	}

	appt, err := svc.Complete(r.Context(), id, req.Notes, uuid.Nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (s *Server) simpleTransition(w http.ResponseWriter, r *http.Request, fn func(appointment.API, uuid.UUID) (*appointment.Appointment, error)) {
	svc, ok := s.apiFor(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	appt, err := fn(svc, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (s *Server) getAppointment(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.apiFor(w, r)
	if !ok {
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	appt, err := svc.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(appt))
}

// listAppointments serves two shapes: GET /appointments?date=YYYY-MM-DD for
// the (cached) day listing, or GET /appointments?from=&to= for an RFC 3339
// range. Both accept clinician_id; the range form also accepts pet_id and
// status.
func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.apiFor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	clinicianID, ok := optionalUUID(w, q.Get("clinician_id"), "clinician_id")
	if !ok {
		return
	}

	if q.Get("date") != "" || q.Get("from") == "" {
		day, err := time.Parse("2006-01-02", q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appts, err := svc.ListByDay(r.Context(), day, clinicianID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeAppointments(w, appts)
		return
	}

	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC 3339")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil || !to.After(from) {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC 3339 and after from")
		return
	}

	filter := appointment.ListFilter{ClinicianID: clinicianID, From: from, To: to}
	petID, ok := optionalUUID(w, q.Get("pet_id"), "pet_id")
	if !ok {
		return
	}
	filter.PetID = petID
	if raw := q.Get("status"); raw != "" {
		status := appointment.Status(raw)
		filter.Status = &status
	}

	appts, err := svc.ListByRange(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeAppointments(w, appts)
}

func writeAppointments(w http.ResponseWriter, appts []appointment.Appointment) {
	out := make([]AppointmentResponse, len(appts))
	for i := range appts {
		out[i] = toResponse(&appts[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func optionalUUID(w http.ResponseWriter, raw, name string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func (s *Server) checkAvailability(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.apiFor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	clinicianID, err := uuid.Parse(q.Get("clinician_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
		return
	}
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start", "start must be RFC 3339")
		return
	}
	duration, err := strconv.Atoi(q.Get("duration_minutes"))
	if err != nil || duration <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be a positive integer")
		return
	}

	free, err := svc.CheckAvailability(r.Context(), clinicianID, start, duration, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ClinicianID:     clinicianID,
		Start:           start.UTC(),
		DurationMinutes: duration,
		Available:       free,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func toResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		PetID:            a.PetID,
		ClinicianID:      a.ClinicianID,
		ServiceID:        a.ServiceID,
		ScheduledAt:      a.ScheduledAt,
		DurationMinutes:  a.DurationMinutes,
		Status:           string(a.Status),
		Reason:           a.Reason,
		LateCancellation: a.LateCancellation,
		Notes:            a.Notes,
		CreatedBy:        a.CreatedBy,
	}
}

// writeDomainError maps error kinds to HTTP statuses. The core carries no
// transport knowledge; this is the one place kinds meet status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPetNotFound):
		writeError(w, http.StatusNotFound, "pet_not_found", err.Error())
	case errors.Is(err, appointment.ErrClinicianNotFound):
		writeError(w, http.StatusNotFound, "clinician_not_found", err.Error())
	case errors.Is(err, appointment.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, appointment.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrLeadTimeViolation):
		writeError(w, http.StatusUnprocessableEntity, "lead_time_violation", err.Error())
	case errors.Is(err, appointment.ErrInvalidRole):
		writeError(w, http.StatusUnprocessableEntity, "invalid_role", err.Error())
	case errors.Is(err, appointment.ErrServiceInactive):
		writeError(w, http.StatusUnprocessableEntity, "service_inactive", err.Error())
	case errors.Is(err, appointment.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, appointment.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
