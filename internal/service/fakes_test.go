package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"adminpanel/api/internal/models"
	"adminpanel/api/internal/rbac"
	"adminpanel/api/internal/repository"
	"adminpanel/api/internal/security"
	"adminpanel/api/internal/session"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// plainHasher stores "plain:<secret>" and counts verifications.
type plainHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *plainHasher) Hash(secret string) (string, error) { return "plain:" + secret, nil }

func (h *plainHasher) Verify(digest, secret string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return digest == "plain:"+secret, nil
}

func (h *plainHasher) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]models.User
	roles  map[int64][]models.RoleAssignment
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		nextID: 100,
		users:  make(map[int64]models.User),
		roles:  make(map[int64][]models.RoleAssignment),
	}
}

func (f *fakeUsers) add(u models.User, roleIDs ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	for _, id := range roleIDs {
		f.roles[u.ID] = append(f.roles[u.ID], models.RoleAssignment{
			RoleID:  id,
			Role:    models.Role{ID: id, Description: "Rol " + string(rune('A'+id-1)), Enabled: true},
			Enabled: true,
		})
	}
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) ActiveRoles(_ context.Context, userID int64) ([]models.RoleAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []models.RoleAssignment
	for _, a := range f.roles[userID] {
		if a.Enabled && a.Role.Enabled {
			active = append(active, a)
		}
	}
	return active, nil
}

func (f *fakeUsers) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := f.FindByUsername(ctx, username)
	return err == nil, nil
}

func (f *fakeUsers) Create(_ context.Context, in models.NewUser) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == in.Username {
			return models.User{}, repository.ErrUsernameTaken
		}
	}
	f.nextID++
	u := models.User{
		ID:                    f.nextID,
		Username:              in.Username,
		PasswordHash:          in.PasswordHash,
		PersonID:              in.PersonID,
		Enabled:               in.Enabled,
		SessionPolicyID:       in.SessionPolicyID,
		AllowMultipleSessions: in.AllowMultipleSessions,
	}
	f.users[u.ID] = u
	for _, id := range in.Roles {
		f.roles[u.ID] = append(f.roles[u.ID], models.RoleAssignment{
			RoleID:  id,
			Role:    models.Role{ID: id, Enabled: true},
			Enabled: id == in.ActiveRole,
		})
	}
	return u, nil
}

func (f *fakeUsers) List(_ context.Context, limit, offset int) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []models.User{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeUsers) SetEnabled(_ context.Context, id int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Enabled = enabled
	f.users[id] = u
	return nil
}

// memStore is an in-memory session.Store with the same conditional
// semantics as the real stores.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	policies map[int64]models.SessionPolicy
	touches  int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]models.Session),
		policies: map[int64]models.SessionPolicy{
			1: {ID: 1, InactivityTimeoutMinutes: 15, AbsoluteTimeoutMinutes: 480, RefreshHintMinutes: 10},
		},
	}
}

var (
	_ session.Store        = (*memStore)(nil)
	_ session.PolicyFinder = (*memStore)(nil)
)

func (m *memStore) Create(_ context.Context, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return session.ErrConflict
	}
	for _, other := range m.sessions {
		if !other.Revoked && other.RefreshJTI == s.RefreshJTI {
			return session.ErrConflict
		}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *memStore) FindByID(_ context.Context, id string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (m *memStore) FindActiveByRefreshID(_ context.Context, jti string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if !s.Revoked && s.RefreshJTI == jti {
			return s, nil
		}
	}
	return models.Session{}, session.ErrNotFound
}

func (m *memStore) ListByUser(_ context.Context, userID int64) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Session, 0)
	for _, s := range m.sessions {
		if s.UserID == userID && !s.Revoked {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (m *memStore) TouchActivity(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Revoked {
		return session.ErrNotFound
	}
	m.touches++
	if now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
	m.sessions[id] = s
	return nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, id, currentJTI, newJTI, newDigest string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Revoked || s.RefreshJTI != currentJTI {
		return session.ErrNotFound
	}
	s.RefreshJTI = newJTI
	s.RefreshDigest = newDigest
	if now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
	m.sessions[id] = s
	return nil
}

func (m *memStore) Revoke(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeLocked(id, now)
	return nil
}

func (m *memStore) revokeLocked(id string, now time.Time) bool {
	s, ok := m.sessions[id]
	if !ok || s.Revoked {
		return false
	}
	s.Revoked = true
	at := now
	s.RevokedAt = &at
	m.sessions[id] = s
	return true
}

func (m *memStore) RevokeAllForUser(_ context.Context, userID int64, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.UserID == userID && m.revokeLocked(id, now) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAtAbsolute.Before(now) && m.revokeLocked(id, now) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) FindPolicy(_ context.Context, id int64) (models.SessionPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok {
		return models.SessionPolicy{}, session.ErrPolicyNotFound
	}
	return p, nil
}

func (m *memStore) get(t *testing.T, id string) models.Session {
	t.Helper()
	s, err := m.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("session %s: %v", id, err)
	}
	return s
}

type fakeGrants struct {
	mu     sync.Mutex
	grants map[int64][]models.ModuleGrant
}

func (f *fakeGrants) ListGrants(_ context.Context, userID int64) ([]models.ModuleGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ModuleGrant(nil), f.grants[userID]...), nil
}

func (f *fakeGrants) set(userID int64, grants ...models.ModuleGrant) {
	f.mu.Lock()
	f.grants[userID] = grants
	f.mu.Unlock()
}

func permGrant(moduleID int64, module string, permID int64, perm string, isDefault bool) models.ModuleGrant {
	id := permID
	return models.ModuleGrant{
		ModuleID:          moduleID,
		ModuleLabel:       module,
		ModulePath:        "/" + strings.ToLower(module),
		IsDefault:         isDefault,
		PermissionID:      &id,
		PermissionLabel:   perm,
		PermissionEnabled: true,
		GrantEnabled:      true,
	}
}

type authFixture struct {
	svc    *AuthService
	users  *fakeUsers
	store  *memStore
	grants *fakeGrants
	hasher *plainHasher
	clock  *testClock
	codec  *security.TokenCodec
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clock := newTestClock()
	codec, err := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:  []byte(strings.Repeat("a", 64)),
		RefreshSecret: []byte(strings.Repeat("r", 64)),
		EncryptionKey: []byte(strings.Repeat("k", 32)),
		AccessTTL:     time.Hour,
		RefreshTTL:    30 * 24 * time.Hour,
	}, security.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	f := &authFixture{
		users:  newFakeUsers(),
		store:  newMemStore(),
		grants: &fakeGrants{grants: make(map[int64][]models.ModuleGrant)},
		hasher: &plainHasher{},
		clock:  clock,
		codec:  codec,
	}
	f.svc = NewAuthService(AuthDeps{
		Users:    f.users,
		Sessions: f.store,
		Policies: f.store,
		RBAC:     rbac.NewResolver(f.grants),
		Codec:    codec,
		Hasher:   f.hasher,
		Logger:   zerolog.Nop(),
		Config:   AuthConfig{ActivityThreshold: time.Minute, DefaultPolicyID: 1},
		Now:      clock.Now,
	})

	f.users.add(models.User{ID: 1, Username: "jsanchez5678", PasswordHash: "plain:secreto", Enabled: true}, 1)
	f.grants.set(1,
		permGrant(10, "Usuarios", 1, "ingresar", false),
		permGrant(10, "Usuarios", 2, "crear", false),
		permGrant(20, "Inicio", 1, "ingresar", true),
	)
	return f
}

func (f *authFixture) login(t *testing.T, username, password string) AuthResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginInput{
		Username: username,
		Password: password,
		Client:   models.ClientInfo{IPAddress: "10.1.1.1", UserAgent: "test"},
	})
	if err != nil {
		t.Fatalf("Login(%s): %v", username, err)
	}
	return res
}
