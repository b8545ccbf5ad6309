//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=server_mocks
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/cache"
	"github.com/Rat-cell/lockerhub/internal/lifecycle"
	"github.com/Rat-cell/lockerhub/internal/repository"
)

// ParcelService is the slice of the lifecycle service the HTTP layer uses.
type ParcelService interface {
	Deposit(ctx context.Context, size repository.LockerSize, recipientEmail string) (*repository.Parcel, string, error)
	GeneratePinFromToken(ctx context.Context, token string) (*repository.Parcel, string, error)
	RegenerateToken(ctx context.Context, parcelID, recipientEmail string, adminReset bool) (*repository.Parcel, string, error)
	RequestPinRegenerationByEmailAndLocker(ctx context.Context, email, lockerID string) (string, error)
	ProcessPickup(ctx context.Context, candidatePin string) (*repository.Parcel, error)
	RetractDeposit(ctx context.Context, parcelID string) (*repository.Parcel, error)
	DisputePickup(ctx context.Context, parcelID string) (*repository.Parcel, error)
	ReportMissingByRecipient(ctx context.Context, parcelID string) (*repository.Parcel, error)
	MarkMissingByAdmin(ctx context.Context, actor lifecycle.Actor, parcelID string) (*repository.Parcel, bool, error)
	SetLockerStatus(ctx context.Context, actor lifecycle.Actor, lockerID string, newStatus repository.LockerStatus) (*repository.Locker, error)
	MarkLockerEmptied(ctx context.Context, actor lifecycle.Actor, lockerID string) (*repository.Locker, error)
	SetLockerSensor(ctx context.Context, lockerID string, occupied bool) error
}

type UserValidator interface {
	ValidateUser(ctx context.Context, username, password string) (bool, error)
}

type Server struct {
	service ParcelService
	users   UserValidator
	lockers *cache.LockerCache
	audit   AuditSink
	logger  *zap.Logger
	server  *http.Server
}

// AuditSink receives one entry per handled request.
type AuditSink interface {
	Record(ctx context.Context, entry RequestAudit)
}

func New(service ParcelService, users UserValidator, lockers *cache.LockerCache, auditSink AuditSink, logger *zap.Logger) *Server {
	return &Server{
		service: service,
		users:   users,
		lockers: lockers,
		audit:   auditSink,
		logger:  logger,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown failed", zap.Error(err))
		}
	}()

	s.logger.Info("http server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.auditLogMiddleware)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/parcels", s.handleDeposit).Methods(http.MethodPost)
	api.HandleFunc("/pickup", s.handlePickup).Methods(http.MethodPost)
	api.HandleFunc("/pin/regenerate", s.handleRequestPinRegeneration).Methods(http.MethodPost)
	api.HandleFunc("/parcels/{id}/retract", s.handleRetract).Methods(http.MethodPost)
	api.HandleFunc("/parcels/{id}/dispute", s.handleDispute).Methods(http.MethodPost)
	api.HandleFunc("/parcels/{id}/missing", s.handleReportMissing).Methods(http.MethodPost)
	api.HandleFunc("/lockers/availability", s.handleAvailability).Methods(http.MethodGet)

	// The emailed PIN-generation link.
	router.HandleFunc("/pin/{token}", s.handleGeneratePin).Methods(http.MethodGet)

	admin := router.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(s.basicAuthMiddleware)
	admin.HandleFunc("/lockers", s.handleListLockers).Methods(http.MethodGet)
	admin.HandleFunc("/parcels/{id}/missing", s.handleAdminMarkMissing).Methods(http.MethodPost)
	admin.HandleFunc("/parcels/{id}/token", s.handleAdminRegenerateToken).Methods(http.MethodPost)
	admin.HandleFunc("/lockers/{id}/status", s.handleSetLockerStatus).Methods(http.MethodPut)
	admin.HandleFunc("/lockers/{id}/emptied", s.handleMarkLockerEmptied).Methods(http.MethodPost)
	admin.HandleFunc("/lockers/{id}/sensor", s.handleSetLockerSensor).Methods(http.MethodPut)

	return router
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
