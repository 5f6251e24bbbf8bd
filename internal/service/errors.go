package service

import "errors"

// AuthError is a failure with a stable code and a user-facing message. The
// code is what clients branch on; the message is localized for the product.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Code + ": " + e.Message }

var (
	ErrInvalidCredentials  = &AuthError{Code: "INVALID_CREDENTIALS", Message: "Credenciales incorrectas"}
	ErrAccountDisabled     = &AuthError{Code: "ACCOUNT_DISABLED", Message: "Usuario deshabilitado"}
	ErrNoActiveRole        = &AuthError{Code: "NO_ACTIVE_ROLE", Message: "Usuario sin rol activo"}
	ErrAmbiguousRole       = &AuthError{Code: "AMBIGUOUS_ROLE", Message: "Usuario tiene múltiples roles activos. Contacte al administrador."}
	ErrPolicyNotFound      = &AuthError{Code: "POLICY_NOT_FOUND", Message: "Política de sesión no encontrada"}
	ErrInvalidToken        = &AuthError{Code: "INVALID_TOKEN", Message: "Token de acceso inválido"}
	ErrInvalidRefreshToken = &AuthError{Code: "INVALID_REFRESH_TOKEN", Message: "Token de refresco inválido"}
	ErrInvalidSession      = &AuthError{Code: "INVALID_SESSION", Message: "Sesión inválida"}
	ErrSessionExpired      = &AuthError{Code: "SESSION_EXPIRED", Message: "Sesión expirada"}
	ErrSessionInactive     = &AuthError{Code: "SESSION_INACTIVE", Message: "Sesión inactiva"}
	ErrSessionNotFound     = &AuthError{Code: "SESSION_NOT_FOUND", Message: "Sesión no encontrada"}

	ErrUserNotFound          = &AuthError{Code: "USER_NOT_FOUND", Message: "Usuario no encontrado"}
	ErrUsernameTaken         = &AuthError{Code: "USERNAME_TAKEN", Message: "El usuario ya existe"}
	ErrNoRolesAssigned       = &AuthError{Code: "INVALID_ROLES", Message: "Debe seleccionar al menos un rol"}
	ErrTooManyRoles          = &AuthError{Code: "INVALID_ROLES", Message: "Máximo 2 roles permitidos"}
	ErrActiveRoleNotAssigned = &AuthError{Code: "INVALID_ROLES", Message: "El rol activo debe estar incluido en los roles asignados"}
	ErrUnknownRole           = &AuthError{Code: "INVALID_ROLES", Message: "Rol no encontrado"}
	ErrUsernameInput         = &AuthError{Code: "VALIDATION_ERROR", Message: "Datos insuficientes para generar usuario"}
)

// CodeOf returns the code of an *AuthError anywhere in err's chain, or "".
func CodeOf(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
