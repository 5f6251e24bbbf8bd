package models

// ModuleGrant is one flattened row of the role -> module -> permission graph
// reachable from a user's enabled role assignments. Rows with a nil
// PermissionID describe a module assignment without any permission grant.
type ModuleGrant struct {
	ModuleID    int64
	ModuleKey   string
	ModuleLabel string
	ModulePath  string
	ModuleIcon  string
	ParentID    *int64
	IsDefault   bool

	PermissionID      *int64
	PermissionKey     string
	PermissionLabel   string
	PermissionEnabled bool
	GrantEnabled      bool
}

type MenuPermission struct {
	ID          int64  `json:"permiso_id"`
	Key         string `json:"key"`
	Description string `json:"descripcion"`
	Enabled     bool   `json:"habilitado"`
}

type MenuModule struct {
	ID          int64            `json:"modulo_id"`
	Key         string           `json:"key"`
	Label       string           `json:"label"`
	Path        string           `json:"path"`
	Icon        string           `json:"icon"`
	ParentID    *int64           `json:"parentId,omitempty"`
	IsDefault   bool             `json:"isDefault"`
	Permissions []MenuPermission `json:"permisos"`
}
