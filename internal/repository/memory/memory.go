// Package memory is an in-memory implementation of the storage interfaces.
// A single mutex serializes transactions; a deep snapshot taken at BeginTx
// backs rollback, so the atomicity contract of the postgres implementation
// holds here too. Used by service and concurrency tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

type Store struct {
	mu      sync.Mutex
	lockers map[string]*repository.Locker
	parcels map[string]*repository.Parcel
	audit   []*repository.AuditRecord
	users   map[string]string
}

func NewStore() *Store {
	return &Store{
		lockers: make(map[string]*repository.Locker),
		parcels: make(map[string]*repository.Parcel),
		users:   make(map[string]string),
	}
}

func (s *Store) Lockers() storage.LockerRepository   { return &lockerRepo{s} }
func (s *Store) Parcels() storage.ParcelRepository   { return &parcelRepo{s} }
func (s *Store) AuditLog() storage.AuditLogRepository { return &auditRepo{s} }
func (s *Store) Users() storage.UserRepository       { return &userRepo{s} }

type snapshot struct {
	lockers map[string]*repository.Locker
	parcels map[string]*repository.Parcel
}

type Tx struct {
	store    *Store
	snap     snapshot
	finished bool
}

func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	s.mu.Lock()
	return &Tx{store: s, snap: s.snapshot()}, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.finished {
		return errors.New("transaction already finished")
	}
	t.finished = true
	t.store.mu.Unlock()
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.finished {
		return nil
	}
	t.finished = true
	t.store.lockers = t.snap.lockers
	t.store.parcels = t.snap.parcels
	t.store.mu.Unlock()
	return nil
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		lockers: make(map[string]*repository.Locker, len(s.lockers)),
		parcels: make(map[string]*repository.Parcel, len(s.parcels)),
	}
	for id, locker := range s.lockers {
		cp := *locker
		snap.lockers[id] = &cp
	}
	for id, parcel := range s.parcels {
		cp := *parcel
		snap.parcels[id] = &cp
	}
	return snap
}

func (s *Store) activeTx(tx storage.Tx) error {
	mtx, ok := tx.(*Tx)
	if !ok {
		return errors.New("unsupported transaction type")
	}
	if mtx.store != s {
		return errors.New("transaction belongs to a different store")
	}
	if mtx.finished {
		return errors.New("transaction already finished")
	}
	return nil
}

type lockerRepo struct{ s *Store }

func (r *lockerRepo) Create(ctx context.Context, locker *repository.Locker) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *locker
	r.s.lockers[locker.ID] = &cp
	return nil
}

func (r *lockerRepo) GetByID(ctx context.Context, id string) (*repository.Locker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	locker, ok := r.s.lockers[id]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	cp := *locker
	return &cp, nil
}

func (r *lockerRepo) GetByIDTx(ctx context.Context, tx storage.Tx, id string) (*repository.Locker, error) {
	if err := r.s.activeTx(tx); err != nil {
		return nil, err
	}
	locker, ok := r.s.lockers[id]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	cp := *locker
	return &cp, nil
}

func (r *lockerRepo) ReserveFreeTx(ctx context.Context, tx storage.Tx, size repository.LockerSize) (*repository.Locker, error) {
	if err := r.s.activeTx(tx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(r.s.lockers))
	for id := range r.s.lockers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		locker := r.s.lockers[id]
		if locker.Size == size && locker.Status == repository.LockerFree {
			locker.Status = repository.LockerOccupied
			locker.UpdatedAt = time.Now().UTC()
			cp := *locker
			return &cp, nil
		}
	}
	return nil, repository.ErrObjectNotFound
}

func (r *lockerRepo) UpdateStatusTx(ctx context.Context, tx storage.Tx, id string, status repository.LockerStatus) error {
	if err := r.s.activeTx(tx); err != nil {
		return err
	}
	locker, ok := r.s.lockers[id]
	if !ok {
		return repository.ErrObjectNotFound
	}
	locker.Status = status
	locker.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *lockerRepo) UpdateSensor(ctx context.Context, id string, occupied bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	locker, ok := r.s.lockers[id]
	if !ok {
		return repository.ErrObjectNotFound
	}
	locker.SensorOccupied = &occupied
	locker.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *lockerRepo) List(ctx context.Context) ([]*repository.Locker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := make([]string, 0, len(r.s.lockers))
	for id := range r.s.lockers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lockers := make([]*repository.Locker, 0, len(ids))
	for _, id := range ids {
		cp := *r.s.lockers[id]
		lockers = append(lockers, &cp)
	}
	return lockers, nil
}

type parcelRepo struct{ s *Store }

func (r *parcelRepo) CreateTx(ctx context.Context, tx storage.Tx, parcel *repository.Parcel) error {
	if err := r.s.activeTx(tx); err != nil {
		return err
	}
	cp := *parcel
	r.s.parcels[parcel.ID] = &cp
	return nil
}

func (r *parcelRepo) GetByID(ctx context.Context, id string) (*repository.Parcel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	parcel, ok := r.s.parcels[id]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	cp := *parcel
	return &cp, nil
}

func (r *parcelRepo) GetByIDTx(ctx context.Context, tx storage.Tx, id string) (*repository.Parcel, error) {
	if err := r.s.activeTx(tx); err != nil {
		return nil, err
	}
	parcel, ok := r.s.parcels[id]
	if !ok {
		return nil, repository.ErrObjectNotFound
	}
	cp := *parcel
	return &cp, nil
}

func (r *parcelRepo) GetByTokenTx(ctx context.Context, tx storage.Tx, token string) (*repository.Parcel, error) {
	if err := r.s.activeTx(tx); err != nil {
		return nil, err
	}
	for _, parcel := range r.s.parcels {
		if parcel.PinGenerationToken != nil && *parcel.PinGenerationToken == token {
			cp := *parcel
			return &cp, nil
		}
	}
	return nil, repository.ErrObjectNotFound
}

func (r *parcelRepo) GetDepositedByEmailAndLocker(ctx context.Context, email, lockerID string) (*repository.Parcel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, parcel := range r.s.parcels {
		if parcel.Status != repository.ParcelDeposited || parcel.LockerID == nil {
			continue
		}
		if *parcel.LockerID == lockerID && strings.EqualFold(parcel.RecipientEmail, email) {
			cp := *parcel
			return &cp, nil
		}
	}
	return nil, repository.ErrObjectNotFound
}

func (r *parcelRepo) GetDepositedWithPin(ctx context.Context) ([]*repository.Parcel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var parcels []*repository.Parcel
	for _, parcel := range r.s.parcels {
		if parcel.Status == repository.ParcelDeposited && parcel.PinHash != nil {
			cp := *parcel
			parcels = append(parcels, &cp)
		}
	}
	sortParcels(parcels)
	return parcels, nil
}

func (r *parcelRepo) GetReminderDue(ctx context.Context, before time.Time) ([]*repository.Parcel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var parcels []*repository.Parcel
	for _, parcel := range r.s.parcels {
		if parcel.Status != repository.ParcelDeposited || parcel.DepositedAt == nil || parcel.ReminderSentAt != nil {
			continue
		}
		if !parcel.DepositedAt.After(before) {
			cp := *parcel
			parcels = append(parcels, &cp)
		}
	}
	sortParcels(parcels)
	return parcels, nil
}

func (r *parcelRepo) GetOverdue(ctx context.Context, before time.Time) ([]*repository.Parcel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var parcels []*repository.Parcel
	for _, parcel := range r.s.parcels {
		if parcel.Status != repository.ParcelDeposited || parcel.DepositedAt == nil {
			continue
		}
		if parcel.DepositedAt.Before(before) {
			cp := *parcel
			parcels = append(parcels, &cp)
		}
	}
	sortParcels(parcels)
	return parcels, nil
}

func (r *parcelRepo) GetActiveByLockerTx(ctx context.Context, tx storage.Tx, lockerID string) (*repository.Parcel, error) {
	if err := r.s.activeTx(tx); err != nil {
		return nil, err
	}
	for _, parcel := range r.s.parcels {
		if parcel.LockerID != nil && *parcel.LockerID == lockerID && repository.ActiveParcelStatus(parcel.Status) {
			cp := *parcel
			return &cp, nil
		}
	}
	return nil, repository.ErrObjectNotFound
}

func (r *parcelRepo) UpdateTx(ctx context.Context, tx storage.Tx, parcel *repository.Parcel) error {
	if err := r.s.activeTx(tx); err != nil {
		return err
	}
	if _, ok := r.s.parcels[parcel.ID]; !ok {
		return repository.ErrObjectNotFound
	}
	parcel.UpdatedAt = time.Now().UTC()
	cp := *parcel
	r.s.parcels[parcel.ID] = &cp
	return nil
}

func (r *parcelRepo) SetReminderSent(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	parcel, ok := r.s.parcels[id]
	if !ok || parcel.Status != repository.ParcelDeposited || parcel.ReminderSentAt != nil {
		return repository.ErrObjectNotFound
	}
	sent := at
	parcel.ReminderSentAt = &sent
	parcel.UpdatedAt = time.Now().UTC()
	return nil
}

type auditRepo struct{ s *Store }

func (r *auditRepo) CreateBatch(ctx context.Context, records []*repository.AuditRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, record := range records {
		cp := *record
		cp.ID = int64(len(r.s.audit) + 1)
		r.s.audit = append(r.s.audit, &cp)
	}
	return nil
}

// AuditRecords returns a copy of everything appended so far.
func (s *Store) AuditRecords() []*repository.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*repository.AuditRecord, len(s.audit))
	copy(records, s.audit)
	return records
}

type userRepo struct{ s *Store }

func (r *userRepo) CreateUser(ctx context.Context, username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[username] = string(hashed)
	return nil
}

func (r *userRepo) ValidateUser(ctx context.Context, username, password string) (bool, error) {
	r.s.mu.Lock()
	hashed, ok := r.s.users[username]
	r.s.mu.Unlock()
	if !ok {
		return false, errors.New("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

func sortParcels(parcels []*repository.Parcel) {
	sort.Slice(parcels, func(i, j int) bool {
		di, dj := parcels[i].DepositedAt, parcels[j].DepositedAt
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		case di.Equal(*dj):
			return parcels[i].ID < parcels[j].ID
		default:
			return di.Before(*dj)
		}
	})
}
