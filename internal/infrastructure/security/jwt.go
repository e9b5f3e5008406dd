package security

import (
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/akshaykankal/facto/internal/config"
	"github.com/akshaykankal/facto/internal/shared/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenAudience = "facto-dashboard"

// JWTService issues the dashboard's bearer tokens. There is a single
// long-lived access token; no refresh flow.
type JWTService struct {
	secret   []byte
	expiry   time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

type Claims struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewJWTService(cfg *config.JWTConfig) *JWTService {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "facto"
	}
	return &JWTService{
		secret:   []byte(cfg.AccessSecret),
		expiry:   cfg.AccessExpiry,
		issuer:   issuer,
		audience: tokenAudience,
		now:      time.Now,
	}
}

func (j *JWTService) GenerateAccessToken(userID uint64, username string) (string, error) {
	now := j.now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Audience:  jwt.ClaimStrings{j.audience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.ErrExpiredToken
		}
		return nil, errors.New(errors.ErrCodeInvalidToken, "Authentication failed")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New(errors.ErrCodeInvalidToken, "Invalid token claims")
	}

	if claims.Issuer != j.issuer {
		return nil, errors.New(errors.ErrCodeInvalidToken, "Invalid token issuer")
	}

	if !slices.Contains(claims.Audience, j.audience) {
		return nil, errors.New(errors.ErrCodeInvalidToken, "Invalid token audience")
	}

	if claims.UserID == 0 {
		return nil, errors.New(errors.ErrCodeInvalidToken, "Invalid token subject")
	}

	return claims, nil
}

func (j *JWTService) AccessExpiry() time.Duration {
	return j.expiry
}
