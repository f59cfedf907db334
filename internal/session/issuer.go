// Package session issues and verifies the signed token pairs handed out
// after a verified login. Tokens are stateless: nothing is stored server
// side and verification is by signature alone.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"verigate/internal/user"
	dErrors "verigate/pkg/domain-errors"
)

const (
	tokenTypeBearer  = "Bearer"
	tokenTypeRefresh = "refresh"

	defaultAccessExpiry  = 24 * time.Hour
	defaultRefreshExpiry = 30 * 24 * time.Hour
)

// Config carries the signing material and token lifetimes. Expiries are
// {value}{unit} strings; malformed values fall back to the defaults.
type Config struct {
	SigningKey    string
	Issuer        string
	Audience      string
	AccessExpiry  string
	RefreshExpiry string
}

// TokenPair is the response of a successful login.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

// AccessClaims are the verified contents of an access token.
type AccessClaims struct {
	UserID      uuid.UUID
	Email       string
	Role        string
	AccessLevel int
	Name        string
	Department  string
}

type accessTokenClaims struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	AccessLevel int    `json:"accessLevel"`
	Name        string `json:"name"`
	Department  string `json:"department"`
	jwt.RegisteredClaims
}

type refreshTokenClaims struct {
	UserID    string `json:"userId"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session tokens with a shared HMAC key.
type Issuer struct {
	signingKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func New(cfg Config) *Issuer {
	return &Issuer{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  ParseExpiry(cfg.AccessExpiry, defaultAccessExpiry),
		refreshTTL: ParseExpiry(cfg.RefreshExpiry, defaultRefreshExpiry),
		now:        time.Now,
	}
}

// Issue creates a fresh access/refresh pair for the user. The refresh
// token is bound to the user id and carries its own, longer expiry.
func (i *Issuer) Issue(u user.User) (TokenPair, error) {
	now := i.now()

	access, err := i.signAccess(u, now)
	if err != nil {
		return TokenPair{}, err
	}

	refreshClaims := refreshTokenClaims{
		UserID:    u.ID.String(),
		TokenType: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(i.signingKey)
	if err != nil {
		return TokenPair{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign refresh token")
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(i.accessTTL.Seconds()),
		TokenType:    tokenTypeBearer,
	}, nil
}

// VerifyAccess checks the signature and registered claims of an access
// token. Expired tokens are reported distinctly from invalid ones.
func (i *Issuer) VerifyAccess(token string) (*AccessClaims, error) {
	var claims accessTokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, dErrors.Wrap(err, dErrors.CodeExpired, "access token has expired")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid access token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid access token")
	}

	return &AccessClaims{
		UserID:      userID,
		Email:       claims.Email,
		Role:        claims.Role,
		AccessLevel: claims.AccessLevel,
		Name:        claims.Name,
		Department:  claims.Department,
	}, nil
}

// VerifyRefresh checks a refresh token's signature and type and returns
// the user it is bound to. Callers load that user and then call Refresh.
func (i *Issuer) VerifyRefresh(refreshToken string) (uuid.UUID, error) {
	var claims refreshTokenClaims
	_, err := jwt.ParseWithClaims(refreshToken, &claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeExpired, "refresh token has expired")
	}
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid refresh token")
	}
	if claims.TokenType != tokenTypeRefresh {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "token is not a refresh token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid refresh token")
	}
	return userID, nil
}

// RefreshResult carries the replacement access token. The refresh token
// itself is left untouched and keeps its original expiry.
type RefreshResult struct {
	AccessToken string `json:"token"`
	ExpiresIn   int64  `json:"expiresIn"`
	TokenType   string `json:"tokenType"`
}

// Refresh validates the refresh token's type and user binding, then
// issues a new access token for the user.
func (i *Issuer) Refresh(refreshToken string, u user.User) (RefreshResult, error) {
	var claims refreshTokenClaims
	_, err := jwt.ParseWithClaims(refreshToken, &claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return RefreshResult{}, dErrors.Wrap(err, dErrors.CodeExpired, "refresh token has expired")
	}
	if err != nil {
		return RefreshResult{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid refresh token")
	}

	if claims.TokenType != tokenTypeRefresh {
		return RefreshResult{}, dErrors.New(dErrors.CodeUnauthorized, "token is not a refresh token")
	}
	if claims.UserID != u.ID.String() {
		return RefreshResult{}, dErrors.New(dErrors.CodeUnauthorized, "refresh token does not belong to this user")
	}

	access, err := i.signAccess(u, i.now())
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{
		AccessToken: access,
		ExpiresIn:   int64(i.accessTTL.Seconds()),
		TokenType:   tokenTypeBearer,
	}, nil
}

func (i *Issuer) signAccess(u user.User, now time.Time) (string, error) {
	claims := accessTokenClaims{
		UserID:      u.ID.String(),
		Email:       u.Email,
		Role:        u.Role,
		AccessLevel: u.AccessLevel,
		Name:        u.Name,
		Department:  u.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign access token")
	}
	return token, nil
}

func (i *Issuer) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
	}
	return i.signingKey, nil
}
