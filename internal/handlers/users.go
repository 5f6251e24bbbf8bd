package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"adminpanel/api/internal/models"
	"adminpanel/api/internal/service"
)

type createUserRequest struct {
	FirstName             string  `json:"firstName" binding:"required"`
	LastName              string  `json:"lastName" binding:"required"`
	Document              string  `json:"document" binding:"required,min=8"`
	Password              string  `json:"password" binding:"required,min=8"`
	PersonID              *string `json:"personId" binding:"omitempty,uuid"`
	Roles                 []int64 `json:"roles" binding:"required,min=1,max=2,dive,gt=0"`
	ActiveRole            int64   `json:"activeRole" binding:"required,gt=0"`
	SessionPolicyID       *int64  `json:"sessionPolicyId" binding:"omitempty,gt=0"`
	AllowMultipleSessions bool    `json:"allowMultipleSessions"`
	Enabled               *bool   `json:"enabled"`
}

type checkUsernameQuery struct {
	Username string `form:"u" binding:"required,username"`
}

type listUsersQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

type userStatusRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type userResponse struct {
	ID                    int64     `json:"usuario_id"`
	Username              string    `json:"usuario"`
	PersonID              *string   `json:"individuo,omitempty"`
	Enabled               bool      `json:"usuario_habilitado"`
	SessionPolicyID       *int64    `json:"politica_sesion_id"`
	AllowMultipleSessions bool      `json:"sesion_multiple"`
	CreatedAt             time.Time `json:"createdAt"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{
		ID:                    u.ID,
		Username:              u.Username,
		PersonID:              u.PersonID,
		Enabled:               u.Enabled,
		SessionPolicyID:       u.SessionPolicyID,
		AllowMultipleSessions: u.AllowMultipleSessions,
		CreatedAt:             u.CreatedAt,
	}
}

func (h HandlerSet) ListUsers(c *gin.Context) {
	var q listUsersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondValidationError(c, err)
		return
	}

	users, err := h.users.List(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	respondOK(c, http.StatusOK, resp)
}

func (h HandlerSet) CheckUsername(c *gin.Context) {
	var q checkUsernameQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondValidationError(c, err)
		return
	}

	available, err := h.users.CheckUsername(c.Request.Context(), q.Username)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if !available {
		c.JSON(http.StatusConflict, gin.H{
			"ok":        false,
			"code":      service.ErrUsernameTaken.Code,
			"message":   service.ErrUsernameTaken.Message,
			"available": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "available": true})
}

func (h HandlerSet) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	user, err := h.users.CreateUser(c.Request.Context(), service.CreateUserInput{
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		Document:              req.Document,
		Password:              req.Password,
		PersonID:              req.PersonID,
		Roles:                 req.Roles,
		ActiveRole:            req.ActiveRole,
		SessionPolicyID:       req.SessionPolicyID,
		AllowMultipleSessions: req.AllowMultipleSessions,
		Enabled:               enabled,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":      true,
		"message": "Usuario creado exitosamente",
		"data":    toUserResponse(user),
	})
}

func (h HandlerSet) SetUserStatus(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Identificador de usuario inválido")
		return
	}

	var req userStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := h.users.SetEnabled(c.Request.Context(), userID, *req.Enabled); err != nil {
		h.respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"usuario_id": userID, "usuario_habilitado": *req.Enabled})
}
