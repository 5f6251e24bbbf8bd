package security

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	encryptionKeyLen = 32
	jtiBytes         = 16
)

var (
	// ErrInvalidAccessToken is the single externally visible access token failure.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrInvalidRefreshToken is the single externally visible refresh token failure.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

type TokenErrorKind string

const (
	KindDecryptionFailed    TokenErrorKind = "decryption_failed"
	KindInvalidSignature    TokenErrorKind = "invalid_signature"
	KindExpired             TokenErrorKind = "expired"
	KindMalformed           TokenErrorKind = "malformed"
	KindInvalidRefreshToken TokenErrorKind = "invalid_refresh_token"
)

// TokenError carries the internal failure stage of a token check. The kind is
// for logs only; callers compare against ErrInvalidAccessToken or
// ErrInvalidRefreshToken.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

func (e *TokenError) Is(target error) bool {
	switch target {
	case ErrInvalidAccessToken:
		return e.Kind != KindInvalidRefreshToken
	case ErrInvalidRefreshToken:
		return e.Kind == KindInvalidRefreshToken
	}
	return false
}

// AccessClaims is what the caller supplies when minting an access token.
type AccessClaims struct {
	UserID      int64
	SessionID   string
	RoleID      int64
	Permissions []string
}

// AccessPayload is a verified access token.
type AccessPayload struct {
	AccessClaims
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type RefreshClaims struct {
	UserID    int64
	SessionID string
	RoleID    int64
	JTI       string
}

type RefreshPayload struct {
	RefreshClaims
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	EncryptionKey []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type accessJWTClaims struct {
	SessionID   string   `json:"sid"`
	RoleID      int64    `json:"rid"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

type refreshJWTClaims struct {
	SessionID string `json:"sid"`
	RoleID    int64  `json:"rid"`
	jwt.RegisteredClaims
}

// envelope is the JWE plaintext wrapping the signed access JWT.
type envelope struct {
	JWT       string `json:"jwt"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// TokenCodec signs, encrypts and verifies access and refresh tokens.
// It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	encKey        []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	encrypter     jose.Encrypter
	now           func() time.Time
}

type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

func NewTokenCodec(cfg TokenConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token codec: signing secrets required")
	}
	if len(cfg.EncryptionKey) != encryptionKeyLen {
		return nil, fmt.Errorf("token codec: encryption key must be %d bytes", encryptionKeyLen)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token codec: ttls must be positive")
	}

	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: cfg.EncryptionKey},
		(&jose.EncrypterOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("token codec: build encrypter: %w", err)
	}

	c := &TokenCodec{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		encKey:        cfg.EncryptionKey,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		encrypter:     encrypter,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken signs the claims with HS512 and seals the result in a
// dir/A256GCM JWE.
func (c *TokenCodec) IssueAccessToken(claims AccessClaims) (string, error) {
	now := c.now().Truncate(time.Second)
	expiresAt := now.Add(c.accessTTL)

	permissions := claims.Permissions
	if permissions == nil {
		permissions = []string{}
	}

	inner := accessJWTClaims{
		SessionID:   claims.SessionID,
		RoleID:      claims.RoleID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(claims.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, inner).SignedString(c.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access jwt: %w", err)
	}

	plaintext, err := json.Marshal(envelope{
		JWT:       signed,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal access envelope: %w", err)
	}

	object, err := c.encrypter.Encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt access envelope: %w", err)
	}
	return object.CompactSerialize()
}

// VerifyAccessToken decrypts the envelope and then verifies the inner JWT.
func (c *TokenCodec) VerifyAccessToken(token string) (AccessPayload, error) {
	object, err := jose.ParseEncrypted(token, []jose.KeyAlgorithm{jose.DIRECT}, []jose.ContentEncryption{jose.A256GCM})
	if err != nil {
		return AccessPayload{}, &TokenError{Kind: KindDecryptionFailed, Err: err}
	}
	plaintext, err := object.Decrypt(c.encKey)
	if err != nil {
		return AccessPayload{}, &TokenError{Kind: KindDecryptionFailed, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil || env.JWT == "" {
		return AccessPayload{}, &TokenError{Kind: KindMalformed, Err: err}
	}
	// same boundary as the inner jwt: expired once now reaches exp
	if !c.now().Before(time.Unix(env.ExpiresAt, 0)) {
		return AccessPayload{}, &TokenError{Kind: KindExpired, Err: errors.New("envelope expired")}
	}

	var claims accessJWTClaims
	_, err = jwt.ParseWithClaims(env.JWT, &claims, c.keyFunc(c.accessSecret), c.parserOptions()...)
	if err != nil {
		return AccessPayload{}, classifyJWTError(err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.SessionID == "" {
		return AccessPayload{}, &TokenError{Kind: KindMalformed, Err: errors.New("missing subject or session")}
	}

	return AccessPayload{
		AccessClaims: AccessClaims{
			UserID:      userID,
			SessionID:   claims.SessionID,
			RoleID:      claims.RoleID,
			Permissions: claims.Permissions,
		},
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

// IssueRefreshToken signs a refresh JWT. Refresh tokens are not encrypted and
// carry no permission data.
func (c *TokenCodec) IssueRefreshToken(claims RefreshClaims) (string, error) {
	if claims.JTI == "" {
		return "", errors.New("refresh token requires a jti")
	}
	now := c.now().Truncate(time.Second)

	inner := refreshJWTClaims{
		SessionID: claims.SessionID,
		RoleID:    claims.RoleID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.JTI,
			Subject:   strconv.FormatInt(claims.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, inner).SignedString(c.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("sign refresh jwt: %w", err)
	}
	return signed, nil
}

func (c *TokenCodec) VerifyRefreshToken(token string) (RefreshPayload, error) {
	var claims refreshJWTClaims
	if _, err := jwt.ParseWithClaims(token, &claims, c.keyFunc(c.refreshSecret), c.parserOptions()...); err != nil {
		return RefreshPayload{}, &TokenError{Kind: KindInvalidRefreshToken, Err: err}
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.SessionID == "" || claims.ID == "" {
		return RefreshPayload{}, &TokenError{Kind: KindInvalidRefreshToken, Err: errors.New("missing subject, session or jti")}
	}

	return RefreshPayload{
		RefreshClaims: RefreshClaims{
			UserID:    userID,
			SessionID: claims.SessionID,
			RoleID:    claims.RoleID,
			JTI:       claims.ID,
		},
		IssuedAt:  numericTime(claims.IssuedAt),
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

// GenerateTokenIdentifier returns 16 random bytes hex encoded.
func GenerateTokenIdentifier() (string, error) {
	buf := make([]byte, jtiBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jti: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (c *TokenCodec) keyFunc(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}
}

func (c *TokenCodec) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
}

func classifyJWTError(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &TokenError{Kind: KindExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &TokenError{Kind: KindInvalidSignature, Err: err}
	default:
		return &TokenError{Kind: KindMalformed, Err: err}
	}
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
