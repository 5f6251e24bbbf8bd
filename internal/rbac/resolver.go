// Package rbac derives a user's permission strings and navigation menu from
// the role -> module -> permission graph.
package rbac

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"adminpanel/api/internal/models"
)

// DefaultPermission is the permission required to enter a module.
const DefaultPermission = "ingresar"

// GrantSource returns the grant rows reachable from a user's enabled role
// assignments on enabled roles, modules and role/module links.
type GrantSource interface {
	ListGrants(ctx context.Context, userID int64) ([]models.ModuleGrant, error)
}

// Resolver reads live grant state on every call; nothing is cached.
type Resolver struct {
	source GrantSource
}

func NewResolver(source GrantSource) *Resolver {
	return &Resolver{source: source}
}

// PermissionString joins a module and permission key into "<module>.<permission>".
func PermissionString(module, permission string) string {
	return normalizeKey(module) + "." + normalizeKey(permission)
}

func (r *Resolver) Permissions(ctx context.Context, userID int64) ([]string, error) {
	grants, err := r.source.ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return permissionsFromGrants(grants), nil
}

func (r *Resolver) HasPermission(ctx context.Context, userID int64, module, permission string) (bool, error) {
	perms, err := r.Permissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return Contains(perms, module, permission), nil
}

func (r *Resolver) Menu(ctx context.Context, userID int64) ([]models.MenuModule, error) {
	grants, err := r.source.ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return menuFromGrants(grants), nil
}

// DefaultModule returns the module flagged default for the role, or nil.
func (r *Resolver) DefaultModule(ctx context.Context, userID int64) (*models.MenuModule, error) {
	menu, err := r.Menu(ctx, userID)
	if err != nil {
		return nil, err
	}
	return DefaultOf(menu), nil
}

// Snapshot resolves permissions, menu and default module from a single read.
func (r *Resolver) Snapshot(ctx context.Context, userID int64) (Snapshot, error) {
	grants, err := r.source.ListGrants(ctx, userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list grants: %w", err)
	}
	menu := menuFromGrants(grants)
	return Snapshot{
		Permissions:   permissionsFromGrants(grants),
		Menu:          menu,
		DefaultModule: DefaultOf(menu),
	}, nil
}

type Snapshot struct {
	Permissions   []string
	Menu          []models.MenuModule
	DefaultModule *models.MenuModule
}

// Landing is the default module, falling back to the first menu entry.
func (s Snapshot) Landing() *models.MenuModule {
	if s.DefaultModule != nil {
		return s.DefaultModule
	}
	if len(s.Menu) > 0 {
		first := s.Menu[0]
		return &first
	}
	return nil
}

// Contains reports whether perms holds the normalized module.permission pair.
func Contains(perms []string, module, permission string) bool {
	want := PermissionString(module, permission)
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}

func DefaultOf(menu []models.MenuModule) *models.MenuModule {
	for i := range menu {
		if menu[i].IsDefault {
			m := menu[i]
			return &m
		}
	}
	return nil
}

func permissionsFromGrants(grants []models.ModuleGrant) []string {
	set := make(map[string]struct{})
	for _, g := range grants {
		if g.PermissionID == nil || !g.GrantEnabled || !g.PermissionEnabled {
			continue
		}
		set[PermissionString(moduleKey(g), permissionKey(g))] = struct{}{}
	}

	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

func menuFromGrants(grants []models.ModuleGrant) []models.MenuModule {
	byID := make(map[int64]*models.MenuModule)
	seenPerm := make(map[int64]map[int64]struct{})
	order := make([]int64, 0)

	for _, g := range grants {
		m, ok := byID[g.ModuleID]
		if !ok {
			m = &models.MenuModule{
				ID:          g.ModuleID,
				Key:         moduleKey(g),
				Label:       g.ModuleLabel,
				Path:        g.ModulePath,
				Icon:        g.ModuleIcon,
				ParentID:    g.ParentID,
				Permissions: []models.MenuPermission{},
			}
			byID[g.ModuleID] = m
			seenPerm[g.ModuleID] = make(map[int64]struct{})
			order = append(order, g.ModuleID)
		}
		// a module reached through two grants is default if either says so
		m.IsDefault = m.IsDefault || g.IsDefault

		if g.PermissionID == nil {
			continue
		}
		if _, dup := seenPerm[g.ModuleID][*g.PermissionID]; dup {
			continue
		}
		seenPerm[g.ModuleID][*g.PermissionID] = struct{}{}
		m.Permissions = append(m.Permissions, models.MenuPermission{
			ID:          *g.PermissionID,
			Key:         permissionKey(g),
			Description: g.PermissionLabel,
			Enabled:     g.GrantEnabled && g.PermissionEnabled,
		})
	}

	menu := make([]models.MenuModule, 0, len(order))
	for _, id := range order {
		m := byID[id]
		sort.Slice(m.Permissions, func(i, j int) bool { return m.Permissions[i].ID < m.Permissions[j].ID })
		menu = append(menu, *m)
	}
	sort.SliceStable(menu, func(i, j int) bool {
		li, lj := strings.ToLower(menu[i].Label), strings.ToLower(menu[j].Label)
		if li != lj {
			return li < lj
		}
		if menu[i].Label != menu[j].Label {
			return menu[i].Label < menu[j].Label
		}
		return menu[i].ID < menu[j].ID
	})
	return menu
}

func moduleKey(g models.ModuleGrant) string {
	if g.ModuleKey != "" {
		return normalizeKey(g.ModuleKey)
	}
	return normalizeKey(g.ModuleLabel)
}

func permissionKey(g models.ModuleGrant) string {
	if g.PermissionKey != "" {
		return normalizeKey(g.PermissionKey)
	}
	return normalizeKey(g.PermissionLabel)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
