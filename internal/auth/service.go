package auth

import (
	"errors"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenTTL = 12 * time.Hour

var (
	ErrEmailRequired = errors.New("valid email required")
	ErrTokenInvalid  = errors.New("token invalid")
)

// Service signs and checks rider tokens. Riders are identified by email
// only; there is no account store behind it.
type Service struct {
	secret []byte
	ttl    time.Duration
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewService(secret string) *Service {
	return &Service{
		secret: []byte(secret),
		ttl:    accessTokenTTL,
	}
}

// IssueToken signs an access token for email.
func (s *Service) IssueToken(email string) (TokenResponse, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return TokenResponse{}, ErrEmailRequired
	}
	access, err := signTokenFn(s, email, s.ttl)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.ttl.Seconds()),
	}, nil
}

// ValidateAccessToken returns the email carried by token.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

var signTokenFn = (*Service).signToken

var parseWithClaimsFn = jwt.ParseWithClaims

func (s *Service) signToken(email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, s.keyFunc, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Email == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *Service) keyFunc(_ *jwt.Token) (interface{}, error) {
	return s.secret, nil
}
