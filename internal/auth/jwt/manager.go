// Package jwt issues and validates the HS256 bearer tokens shared by
// Shipnology services.
package jwt

import (
	stderrors "errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shipnology/shipnology-backend/pkg/config"
	"github.com/shipnology/shipnology-backend/pkg/errors"
)

// Claims represents the JWT claims
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"user_id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`

	// Tenant context, empty for platform administrators
	OrganisationID int64  `json:"organisation_id,omitempty"`
	DatabaseName   string `json:"database_name,omitempty"`
	IsSupervisor   bool   `json:"is_superviseur,omitempty"`
}

// Manager handles JWT operations
type Manager struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewManager creates a new JWT manager
func NewManager(cfg *config.JWTConfig) *Manager {
	return &Manager{config: cfg, now: time.Now}
}

// UserInfo contains user information for token generation
type UserInfo struct {
	ID          string
	Email       string
	Name        string
	Role        string
	Permissions []string

	OrganisationID int64
	DatabaseName   string
	IsSupervisor   bool
}

// SupervisorInfo builds the claims subject for a freshly created tenant supervisor
func SupervisorInfo(supervisorID int64, email, name, role string, organisationID int64, databaseName string) *UserInfo {
	return &UserInfo{
		ID:             strconv.FormatInt(supervisorID, 10),
		Email:          email,
		Name:           name,
		Role:           role,
		OrganisationID: organisationID,
		DatabaseName:   databaseName,
		IsSupervisor:   true,
	}
}

// GenerateAccessToken signs an access token for user
func (m *Manager) GenerateAccessToken(user *UserInfo) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.config.AccessExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UserID:         user.ID,
		Email:          user.Email,
		Name:           user.Name,
		Role:           user.Role,
		Permissions:    user.Permissions,
		OrganisationID: user.OrganisationID,
		DatabaseName:   user.DatabaseName,
		IsSupervisor:   user.IsSupervisor,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	},
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}

// GetTokenExpiry returns the access token expiry duration
func (m *Manager) GetTokenExpiry() time.Duration {
	return m.config.AccessExpiry
}
