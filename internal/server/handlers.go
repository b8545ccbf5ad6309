package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/allocator"
	"github.com/Rat-cell/lockerhub/internal/lifecycle"
	"github.com/Rat-cell/lockerhub/internal/repository"
)

type parcelResponse struct {
	ID             string  `json:"id"`
	LockerID       *string `json:"locker_id,omitempty"`
	RecipientEmail string  `json:"recipient_email"`
	Status         string  `json:"status"`
	DepositedAt    *string `json:"deposited_at,omitempty"`
	PickedUpAt     *string `json:"picked_up_at,omitempty"`
}

func toParcelResponse(p *repository.Parcel) parcelResponse {
	resp := parcelResponse{
		ID:             p.ID,
		LockerID:       p.LockerID,
		RecipientEmail: p.RecipientEmail,
		Status:         string(p.Status),
	}
	if p.DepositedAt != nil {
		s := p.DepositedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.DepositedAt = &s
	}
	if p.PickedUpAt != nil {
		s := p.PickedUpAt.Format("2006-01-02T15:04:05Z07:00")
		resp.PickedUpAt = &s
	}
	return resp
}

// statusOf maps a service error to an HTTP status. Unknown errors are
// infrastructure failures and surface as 500.
func statusOf(err error) int {
	var stateErr *lifecycle.StateError
	var lockerStateErr *lifecycle.LockerStateError
	switch {
	case errors.Is(err, lifecycle.ErrInvalidEmail),
		errors.Is(err, lifecycle.ErrInvalidSize),
		errors.Is(err, lifecycle.ErrInvalidLockerStatus):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrParcelNotFound),
		errors.Is(err, lifecycle.ErrLockerNotFound),
		errors.Is(err, lifecycle.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidPin):
		return http.StatusUnauthorized
	case errors.Is(err, lifecycle.ErrEmailMismatch):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrPinExpired),
		errors.Is(err, lifecycle.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, lifecycle.ErrPinLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, allocator.ErrNoAvailability),
		errors.Is(err, lifecycle.ErrLockerHoldsActiveParcel),
		errors.As(err, &stateErr),
		errors.As(err, &lockerStateErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size           string `json:"size"`
		RecipientEmail string `json:"recipient_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parcel, plaintextPin, err := s.service.Deposit(r.Context(), repository.LockerSize(req.Size), req.RecipientEmail)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"parcel": toParcelResponse(parcel)}
	if plaintextPin != "" {
		resp["pin"] = plaintextPin
	} else {
		resp["message"] = "a PIN-generation link has been emailed to the recipient"
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handlePickup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parcel, err := s.service.ProcessPickup(r.Context(), req.Pin)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "parcel released",
		"parcel":  toParcelResponse(parcel),
	})
}

func (s *Server) handleGeneratePin(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if token == "" {
		respondError(w, http.StatusBadRequest, "missing token")
		return
	}

	parcel, plaintextPin, err := s.service.GeneratePinFromToken(r.Context(), token)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"pin":    plaintextPin,
		"parcel": toParcelResponse(parcel),
	})
}

func (s *Server) handleRequestPinRegeneration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		LockerID string `json:"locker_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message, err := s.service.RequestPinRegenerationByEmailAndLocker(r.Context(), req.Email, req.LockerID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	// Always 200 with the same message, matched or not.
	respondJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (s *Server) handleRetract(w http.ResponseWriter, r *http.Request) {
	s.handleParcelTransition(w, r, s.service.RetractDeposit)
}

func (s *Server) handleDispute(w http.ResponseWriter, r *http.Request) {
	s.handleParcelTransition(w, r, s.service.DisputePickup)
}

func (s *Server) handleReportMissing(w http.ResponseWriter, r *http.Request) {
	s.handleParcelTransition(w, r, s.service.ReportMissingByRecipient)
}

func (s *Server) handleParcelTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, parcelID string) (*repository.Parcel, error)) {
	parcelID := mux.Vars(r)["id"]
	if parcelID == "" {
		respondError(w, http.StatusBadRequest, "missing parcel id")
		return
	}

	parcel, err := op(r.Context(), parcelID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"parcel": toParcelResponse(parcel)})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	counts := s.lockers.FreeCountBySize()
	respondJSON(w, http.StatusOK, map[string]int{
		string(repository.SizeSmall):  counts[repository.SizeSmall],
		string(repository.SizeMedium): counts[repository.SizeMedium],
		string(repository.SizeLarge):  counts[repository.SizeLarge],
	})
}

// handleListLockers serves the cached locker bank, sensor readings included.
func (s *Server) handleListLockers(w http.ResponseWriter, r *http.Request) {
	lockers := s.lockers.All()
	sort.Slice(lockers, func(i, j int) bool { return lockers[i].ID < lockers[j].ID })
	respondJSON(w, http.StatusOK, lockers)
}

func (s *Server) handleAdminMarkMissing(w http.ResponseWriter, r *http.Request) {
	parcelID := mux.Vars(r)["id"]
	parcel, changed, err := s.service.MarkMissingByAdmin(r.Context(), actorFrom(r.Context()), parcelID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"parcel": toParcelResponse(parcel)}
	if !changed {
		resp["message"] = "parcel already marked missing"
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminRegenerateToken(w http.ResponseWriter, r *http.Request) {
	parcelID := mux.Vars(r)["id"]
	var req struct {
		RecipientEmail string `json:"recipient_email"`
		ResetCounter   bool   `json:"reset_counter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parcel, token, err := s.service.RegenerateToken(r.Context(), parcelID, req.RecipientEmail, req.ResetCounter)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":  token,
		"parcel": toParcelResponse(parcel),
	})
}

func (s *Server) handleSetLockerStatus(w http.ResponseWriter, r *http.Request) {
	lockerID := mux.Vars(r)["id"]
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	locker, err := s.service.SetLockerStatus(r.Context(), actorFrom(r.Context()), lockerID, repository.LockerStatus(req.Status))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.lockers.Set(locker)
	respondJSON(w, http.StatusOK, locker)
}

func (s *Server) handleMarkLockerEmptied(w http.ResponseWriter, r *http.Request) {
	lockerID := mux.Vars(r)["id"]
	locker, err := s.service.MarkLockerEmptied(r.Context(), actorFrom(r.Context()), lockerID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.lockers.Set(locker)
	respondJSON(w, http.StatusOK, locker)
}

func (s *Server) handleSetLockerSensor(w http.ResponseWriter, r *http.Request) {
	lockerID := mux.Vars(r)["id"]
	var req struct {
		Occupied bool `json:"occupied"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.service.SetLockerSensor(r.Context(), lockerID, req.Occupied); err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "sensor state recorded"})
}
