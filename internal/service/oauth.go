package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/agentflow-dev/toolsets/internal/models"
)

// OAuth flow errors.
var (
	ErrNotConfigured = errors.New("oauth config is missing client credentials")
	ErrInvalidState  = errors.New("invalid or expired oauth state")
)

// stateTTL bounds how long an authorization redirect stays valid. Providers
// typically expire their own codes well before this.
const stateTTL = 10 * time.Minute

// oauthCoordinator signs and verifies the state parameter and drives the
// authorization-code exchange.
type oauthCoordinator struct {
	stateSecret []byte
	callbackURL string
}

func newOAuthCoordinator(stateSecret []byte, callbackURL string) *oauthCoordinator {
	return &oauthCoordinator{stateSecret: stateSecret, callbackURL: callbackURL}
}

// stateClaims binds the state parameter to one (user, instance) pair so the
// callback cannot be replayed against another instance.
type stateClaims struct {
	InstanceID string `json:"instanceId"`
	UserID     string `json:"userId"`
	jwt.RegisteredClaims
}

func (c *oauthCoordinator) signState(instanceID, userID string) (string, error) {
	now := time.Now()
	claims := stateClaims{
		InstanceID: instanceID,
		UserID:     userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.stateSecret)
}

func (c *oauthCoordinator) verifyState(state string) (*stateClaims, error) {
	var claims stateClaims
	token, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.stateSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidState
	}
	if claims.InstanceID == "" || claims.UserID == "" {
		return nil, ErrInvalidState
	}
	return &claims, nil
}

func oauth2ConfigFor(config *models.OAuthConfig, redirectURI string) *oauth2.Config {
	if config.RedirectURI != "" {
		redirectURI = config.RedirectURI
	}
	return &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.AuthorizeURL,
			TokenURL: config.TokenURL,
		},
	}
}

func (s *toolsetService) AuthorizeURL(ctx context.Context, instanceID, userID, baseURL string) (*models.AuthorizeURLResult, error) {
	instance, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.AuthType != models.AuthTypeOAuth {
		return nil, ErrNotOAuthInstance
	}
	if instance.OAuthConfigID == "" {
		return nil, ErrNotConfigured
	}
	config, err := s.store.GetOAuthConfig(ctx, instance.OAuthConfigID)
	if err != nil {
		return nil, err
	}
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, ErrNotConfigured
	}

	state, err := s.oauth.signState(instanceID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign oauth state: %w", err)
	}

	redirectURI := s.oauth.callbackURL
	if baseURL != "" {
		redirectURI = baseURL + "/api/v1/toolsets/oauth/callback"
	}
	oc := oauth2ConfigFor(config, redirectURI)
	url := oc.AuthCodeURL(state, oauth2.AccessTypeOffline)

	return &models.AuthorizeURLResult{
		Success:          true,
		AuthorizationURL: url,
		State:            state,
	}, nil
}

func (s *toolsetService) CompleteOAuth(ctx context.Context, state, code string) error {
	claims, err := s.oauth.verifyState(state)
	if err != nil {
		return err
	}
	instance, err := s.store.GetInstance(ctx, claims.InstanceID)
	if err != nil {
		return err
	}
	config, err := s.store.GetOAuthConfig(ctx, instance.OAuthConfigID)
	if err != nil {
		return err
	}

	oc := oauth2ConfigFor(config, s.oauth.callbackURL)
	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	secret := map[string]string{
		"accessToken": token.AccessToken,
		"tokenType":   token.TokenType,
	}
	if token.RefreshToken != "" {
		secret["refreshToken"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		secret["expiresAt"] = strconv.FormatInt(token.Expiry.UnixMilli(), 10)
	}

	err = s.store.UpsertCredential(ctx, &models.UserCredential{
		UserID:        claims.UserID,
		InstanceID:    claims.InstanceID,
		Secret:        secret,
		Authenticated: true,
	})
	if err != nil {
		return err
	}
	s.logger.Info("oauth handshake completed",
		zap.String("instance_id", claims.InstanceID),
		zap.String("toolset_type", instance.ToolsetType))
	return nil
}
