// Package memory is an in-process implementation of the user, tenant and
// membership stores. It mirrors the Postgres constraints (unique email and
// slug, one membership per user and tenant, per-tenant serialized
// mutations) and backs service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ghostworks/api/internal/apperr"
	"ghostworks/api/internal/models"
	"ghostworks/api/internal/repository"
)

type DB struct {
	mu          sync.RWMutex
	users       map[string]models.User
	tenants     map[string]models.Tenant
	memberships map[membershipKey]models.Membership

	lockMu      sync.Mutex
	tenantLocks map[string]*sync.Mutex
}

type membershipKey struct {
	tenantID string
	userID   string
}

func New() *DB {
	return &DB{
		users:       make(map[string]models.User),
		tenants:     make(map[string]models.Tenant),
		memberships: make(map[membershipKey]models.Membership),
		tenantLocks: make(map[string]*sync.Mutex),
	}
}

func (db *DB) Users() *Users             { return &Users{db: db} }
func (db *DB) Tenants() *Tenants         { return &Tenants{db: db} }
func (db *DB) Memberships() *Memberships { return &Memberships{db: db} }

func (db *DB) tenantLock(tenantID string) *sync.Mutex {
	db.lockMu.Lock()
	defer db.lockMu.Unlock()
	l, ok := db.tenantLocks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		db.tenantLocks[tenantID] = l
	}
	return l
}

type Users struct{ db *DB }

func (u *Users) Create(_ context.Context, user models.User) (models.User, error) {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()

	for _, existing := range u.db.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return models.User{}, apperr.ErrDuplicateEmail
		}
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	u.db.users[user.ID] = user
	return user, nil
}

func (u *Users) GetByID(_ context.Context, id string) (models.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()
	user, ok := u.db.users[id]
	if !ok {
		return models.User{}, apperr.ErrUserNotFound
	}
	return user, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (models.User, error) {
	u.db.mu.RLock()
	defer u.db.mu.RUnlock()
	for _, user := range u.db.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return models.User{}, apperr.ErrUserNotFound
}

func (u *Users) UpdatePassword(_ context.Context, id string, hash []byte) error {
	return u.update(id, func(user *models.User) { user.PasswordHash = hash })
}

func (u *Users) MarkVerified(_ context.Context, id string) error {
	return u.update(id, func(user *models.User) { user.IsVerified = true })
}

func (u *Users) Deactivate(_ context.Context, id string) error {
	return u.update(id, func(user *models.User) { user.IsActive = false })
}

func (u *Users) update(id string, fn func(*models.User)) error {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	user, ok := u.db.users[id]
	if !ok {
		return apperr.ErrUserNotFound
	}
	fn(&user)
	user.UpdatedAt = time.Now().UTC()
	u.db.users[id] = user
	return nil
}

type Tenants struct{ db *DB }

func (t *Tenants) CreateWithOwner(_ context.Context, tenant models.Tenant, owner models.Membership) (models.Tenant, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	for _, existing := range t.db.tenants {
		if existing.Slug == tenant.Slug {
			return models.Tenant{}, apperr.ErrSlugTaken
		}
	}
	if _, ok := t.db.users[owner.UserID]; !ok {
		return models.Tenant{}, apperr.ErrUserNotFound
	}

	now := time.Now().UTC()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	if tenant.Settings == nil {
		tenant.Settings = map[string]any{}
	}
	t.db.tenants[tenant.ID] = tenant

	owner.TenantID = tenant.ID
	owner.Role = models.RoleOwner
	owner.IsActive = true
	owner.CreatedAt, owner.UpdatedAt = now, now
	t.db.memberships[membershipKey{tenant.ID, owner.UserID}] = owner
	return tenant, nil
}

func (t *Tenants) GetByID(_ context.Context, id string) (models.Tenant, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	tenant, ok := t.db.tenants[id]
	if !ok || !tenant.IsActive {
		return models.Tenant{}, apperr.ErrTenantNotFound
	}
	return tenant, nil
}

func (t *Tenants) Update(_ context.Context, id string, upd models.TenantUpdate) (models.Tenant, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	tenant, ok := t.db.tenants[id]
	if !ok || !tenant.IsActive {
		return models.Tenant{}, apperr.ErrTenantNotFound
	}
	if upd.Name != nil {
		tenant.Name = *upd.Name
	}
	if upd.Description != nil {
		tenant.Description = upd.Description
	}
	if upd.Plan != nil {
		tenant.Plan = *upd.Plan
	}
	if upd.Settings != nil {
		merged := make(map[string]any, len(tenant.Settings)+len(upd.Settings))
		for k, v := range tenant.Settings {
			merged[k] = v
		}
		for k, v := range upd.Settings {
			merged[k] = v
		}
		tenant.Settings = merged
	}
	tenant.UpdatedAt = time.Now().UTC()
	t.db.tenants[id] = tenant
	return tenant, nil
}

func (t *Tenants) ListForUser(_ context.Context, userID string) ([]models.TenantSummary, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	var out []models.TenantSummary
	for key, m := range t.db.memberships {
		if key.userID != userID || !m.IsActive {
			continue
		}
		tenant, ok := t.db.tenants[key.tenantID]
		if !ok || !tenant.IsActive {
			continue
		}
		count := 0
		for k, other := range t.db.memberships {
			if k.tenantID == key.tenantID && other.IsActive {
				count++
			}
		}
		out = append(out, models.TenantSummary{Tenant: tenant, Role: m.Role, MemberCount: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *Tenants) Delete(_ context.Context, id string) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if _, ok := t.db.tenants[id]; !ok {
		return apperr.ErrTenantNotFound
	}
	delete(t.db.tenants, id)
	for key := range t.db.memberships {
		if key.tenantID == id {
			delete(t.db.memberships, key)
		}
	}
	return nil
}

type Memberships struct{ db *DB }

func (s *Memberships) Add(_ context.Context, m models.Membership) (models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.tenants[m.TenantID]; !ok {
		return models.Membership{}, apperr.ErrTenantNotFound
	}
	if _, ok := s.db.users[m.UserID]; !ok {
		return models.Membership{}, apperr.ErrUserNotFound
	}

	key := membershipKey{m.TenantID, m.UserID}
	now := time.Now().UTC()
	if existing, ok := s.db.memberships[key]; ok {
		if existing.IsActive {
			return models.Membership{}, apperr.ErrAlreadyMember
		}
		existing.Role = m.Role
		existing.IsActive = true
		existing.UpdatedAt = now
		s.db.memberships[key] = existing
		return existing, nil
	}

	m.IsActive = true
	m.CreatedAt, m.UpdatedAt = now, now
	s.db.memberships[key] = m
	return m, nil
}

func (s *Memberships) Get(_ context.Context, tenantID, userID string) (models.Membership, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	m, ok := s.db.memberships[membershipKey{tenantID, userID}]
	if !ok || !m.IsActive {
		return models.Membership{}, apperr.ErrNotAMember
	}
	return m, nil
}

func (s *Memberships) ListByTenant(_ context.Context, tenantID string) ([]models.Membership, error) {
	return s.list(func(k membershipKey) bool { return k.tenantID == tenantID }), nil
}

func (s *Memberships) ListByUser(_ context.Context, userID string) ([]models.Membership, error) {
	return s.list(func(k membershipKey) bool { return k.userID == userID }), nil
}

func (s *Memberships) list(match func(membershipKey) bool) []models.Membership {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []models.Membership
	for key, m := range s.db.memberships {
		if !match(key) || !m.IsActive {
			continue
		}
		m.Email = s.db.users[m.UserID].Email
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Memberships) CountActiveOwners(_ context.Context, tenantID string) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.countOwners(tenantID), nil
}

func (db *DB) countOwners(tenantID string) int {
	count := 0
	for key, m := range db.memberships {
		if key.tenantID == tenantID && m.IsActive && m.Role == models.RoleOwner {
			count++
		}
	}
	return count
}

// WithinTenant serializes mutations per tenant and applies staged writes
// only when fn succeeds.
func (s *Memberships) WithinTenant(ctx context.Context, tenantID string, fn func(tx repository.MembershipTx) error) error {
	lock := s.db.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	tx := &membershipTx{db: s.db, tenantID: tenantID, staged: make(map[string]models.Membership)}
	if err := fn(tx); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for userID, m := range tx.staged {
		s.db.memberships[membershipKey{tenantID, userID}] = m
	}
	return nil
}

type membershipTx struct {
	db       *DB
	tenantID string
	staged   map[string]models.Membership
}

func (t *membershipTx) current(userID string) (models.Membership, bool) {
	if m, ok := t.staged[userID]; ok {
		return m, true
	}
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	m, ok := t.db.memberships[membershipKey{t.tenantID, userID}]
	return m, ok
}

func (t *membershipTx) Lock(_ context.Context, userIDs ...string) (map[string]models.Membership, error) {
	out := make(map[string]models.Membership, len(userIDs))
	for _, id := range userIDs {
		if m, ok := t.current(id); ok {
			out[id] = m
		}
	}
	return out, nil
}

func (t *membershipTx) CountActiveOwners(_ context.Context) (int, error) {
	t.db.mu.RLock()
	count := 0
	for key, m := range t.db.memberships {
		if key.tenantID != t.tenantID {
			continue
		}
		if staged, ok := t.staged[key.userID]; ok {
			m = staged
		}
		if m.IsActive && m.Role == models.RoleOwner {
			count++
		}
	}
	t.db.mu.RUnlock()
	return count, nil
}

func (t *membershipTx) UpdateRole(_ context.Context, userID string, role models.Role) (models.Membership, error) {
	m, ok := t.current(userID)
	if !ok || !m.IsActive {
		return models.Membership{}, apperr.ErrNotAMember
	}
	m.Role = role
	m.UpdatedAt = time.Now().UTC()
	t.staged[userID] = m
	return m, nil
}

func (t *membershipTx) Deactivate(_ context.Context, userID string) error {
	m, ok := t.current(userID)
	if !ok || !m.IsActive {
		return apperr.ErrNotAMember
	}
	m.IsActive = false
	m.UpdatedAt = time.Now().UTC()
	t.staged[userID] = m
	return nil
}
