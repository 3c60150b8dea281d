package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/merakilabs/marketplace-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	AccountID uuid.UUID
	Email     string
	Role      enums.AccountRole
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	AccountID uuid.UUID         `json:"account_id"`
	Email     string            `json:"email,omitempty"`
	Role      enums.AccountRole `json:"role"`
	jwt.RegisteredClaims
}
