package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/estate-auth-api/internal/models"
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Reasons tagged on rejected tokens. All but wrong_type come from TokenFailureReason.
const (
	TokenReasonInvalidSignature = "invalid_signature"
	TokenReasonMalformed        = "malformed"
	TokenReasonExpired          = "expired"
	TokenReasonUnsupported      = "unsupported"
	TokenReasonEmptyClaims      = "empty_claims"
	TokenReasonWrongType        = "wrong_type"
)

var (
	errEmptyToken     = errors.New("token is empty")
	errEmptySubject   = errors.New("token subject is empty")
	errUnsupportedAlg = errors.New("unsupported signing method")
)

// TokenClaims represents JWT claims issued by the service.
type TokenClaims struct {
	Role     models.UserRole `json:"role,omitempty"`
	Username string          `json:"username,omitempty"`
	Type     TokenType       `json:"type"`
	jwt.RegisteredClaims
}

// TokenConfig configures token issuance.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService signs and verifies HS256 tokens with one static key.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg TokenConfig) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

// AccessTTL returns the access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// IssueAccessToken creates a short lived token carrying the user's role.
func (s *TokenService) IssueAccessToken(user *models.User) (string, error) {
	if user == nil || user.Email == "" {
		return "", errEmptySubject
	}
	return s.sign(TokenClaims{
		Role:     user.Role,
		Username: user.Username,
		Type:     TokenTypeAccess,
	}, user.Email, s.accessTTL)
}

// IssueRefreshToken creates a long lived token used only for rotation.
func (s *TokenService) IssueRefreshToken(user *models.User) (string, error) {
	if user == nil || user.Email == "" {
		return "", errEmptySubject
	}
	return s.sign(TokenClaims{Type: TokenTypeRefresh}, user.Email, s.refreshTTL)
}

func (s *TokenService) sign(claims TokenClaims, subject string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Type, err)
	}
	return signed, nil
}

// IsExpired reads exp without verifying the signature. Unparseable tokens count as expired.
func (s *TokenService) IsExpired(tokenString string) bool {
	claims, err := s.Peek(tokenString)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return !s.now().Before(claims.ExpiresAt.Time)
}

// Peek decodes claims without verifying the signature. The result must not be trusted.
func (s *TokenService) Peek(tokenString string) (*TokenClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, errEmptyToken
	}
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Validate reports whether the token is well formed, correctly signed and unexpired.
func (s *TokenService) Validate(tokenString string) bool {
	return s.Verify(tokenString) == nil
}

// Verify performs full verification and returns the failure, if any.
func (s *TokenService) Verify(tokenString string) error {
	_, err := s.parse(tokenString)
	return err
}

// SubjectOf returns the email the token was issued to.
func (s *TokenService) SubjectOf(tokenString string) (string, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return "", &TokenParseError{Err: err}
	}
	return claims.Subject, nil
}

// IsRefreshType reports whether the verified token is a refresh token.
func (s *TokenService) IsRefreshType(tokenString string) bool {
	claims, err := s.parse(tokenString)
	if err != nil {
		return false
	}
	return claims.Type == TokenTypeRefresh
}

// IsAccessType reports whether the verified token is an access token.
func (s *TokenService) IsAccessType(tokenString string) bool {
	claims, err := s.parse(tokenString)
	if err != nil {
		return false
	}
	return claims.Type == TokenTypeAccess
}

func (s *TokenService) parse(tokenString string) (claims *TokenClaims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = fmt.Errorf("%w: %v", jwt.ErrTokenMalformed, r)
		}
	}()

	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: %w", jwt.ErrTokenMalformed, errEmptyToken)
	}

	parser := jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	claims = &TokenClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v", errUnsupportedAlg, token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.Type == "" {
		return nil, errEmptySubject
	}
	return claims, nil
}

// TokenFailureReason maps a verification error to a metric label.
func TokenFailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errUnsupportedAlg), errors.Is(err, jwt.ErrTokenUnverifiable):
		return TokenReasonUnsupported
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return TokenReasonInvalidSignature
	case errors.Is(err, errEmptySubject), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return TokenReasonEmptyClaims
	default:
		return TokenReasonMalformed
	}
}
