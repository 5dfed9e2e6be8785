package usertoken

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer          = "scripturechat-auth"
	defaultAudience        = "scripturechat-api"
	defaultLeeway          = 30 * time.Second
	defaultJWKSCacheTTL    = 5 * time.Minute
	defaultRefreshCooldown = 10 * time.Second
)

var (
	// ErrMissingToken means the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrMissingSubject means a valid token named no user.
	ErrMissingSubject = errors.New("token subject missing")
)

// Config configures user access-token verification.
type Config struct {
	JWKSURL  string
	Issuer   string
	Audience string
	Leeway   time.Duration
	// RefreshCooldown bounds how often an unknown key id may refetch the JWKS.
	RefreshCooldown time.Duration
	HTTPClient      *http.Client
}

// Verifier checks RS256 access tokens against the identity provider's JWKS
// and yields the user id in the subject claim.
type Verifier struct {
	parser *jwt.Parser
	keys   *keySet
}

// NewVerifier fetches the key set once and fails when it is unusable.
func NewVerifier(cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	issuer := firstNonEmpty(cfg.Issuer, defaultIssuer)
	audience := firstNonEmpty(cfg.Audience, defaultAudience)
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	cooldown := cfg.RefreshCooldown
	if cooldown <= 0 {
		cooldown = defaultRefreshCooldown
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	v := &Verifier{
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
		keys: &keySet{
			url:      jwksURL,
			client:   client,
			ttl:      defaultJWKSCacheTTL,
			cooldown: cooldown,
			now:      time.Now,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := v.keys.refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial jwks fetch: %w", err)
	}
	return v, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserFromRequest verifies the request's token and returns its subject.
// Browsers cannot set headers on WebSocket upgrades, so an access_token query
// parameter is accepted as well.
func (v *Verifier) UserFromRequest(r *http.Request) (string, error) {
	token, ok := BearerToken(r)
	if !ok {
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return v.VerifySubject(r.Context(), token)
}

// VerifySubject validates token and returns the subject user id.
func (v *Verifier) VerifySubject(ctx context.Context, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.key(ctx, kid)
	})
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrMissingSubject
	}
	return subject, nil
}

func firstNonEmpty(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
