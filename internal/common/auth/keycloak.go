// internal/common/auth/keycloak.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"submission-workflow/internal/common/config"
	apperrors "submission-workflow/internal/common/errors"
	"submission-workflow/internal/models"
)

// KeycloakClient resolves bearer tokens into actors through Keycloak token
// introspection.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	adminRole    string
	agencyRole   string
	httpClient   *http.Client
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active      bool   `json:"active"`
	Scope       string `json:"scope"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Sub         string `json:"sub"`
	Exp         int64  `json:"exp"`
	AgencyID    string `json:"agency_id"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (t *TokenInfo) hasRole(role string) bool {
	for _, r := range t.RealmAccess.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NewKeycloakClient creates a new instance of KeycloakClient.
func NewKeycloakClient(cfg config.KeycloakConfig) *KeycloakClient {
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(cfg.URL, "/"),
		realm:        cfg.Realm,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		adminRole:    cfg.AdminRole,
		agencyRole:   cfg.AgencyRole,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateToken checks if an access token is valid and active.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, k.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewCollaboratorError("keycloak", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		e := apperrors.NewCollaboratorError("keycloak",
			fmt.Errorf("introspection status %d: %s", resp.StatusCode, string(body)))
		e.Retryable = isTransientHTTPError(resp.StatusCode)
		return nil, e
	}

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, apperrors.NewCollaboratorError("keycloak", fmt.Errorf("decode introspection: %w", err))
	}

	if !tokenInfo.Active {
		return nil, apperrors.NewUnauthorizedError("token is expired, revoked or malformed")
	}
	return &tokenInfo, nil
}

// Authenticate validates the token and maps its realm roles onto an actor.
// The admin role wins over the agency role; an agency actor must carry an
// agency_id claim.
func (k *KeycloakClient) Authenticate(ctx context.Context, token string) (models.Actor, error) {
	info, err := k.ValidateToken(ctx, token)
	if err != nil {
		return models.Actor{}, err
	}
	return ActorFromToken(info, k.adminRole, k.agencyRole)
}

// ActorFromToken maps introspection output onto an actor.
func ActorFromToken(info *TokenInfo, adminRole, agencyRole string) (models.Actor, error) {
	id := info.Sub
	if id == "" {
		id = info.Username
	}
	switch {
	case info.hasRole(adminRole):
		return models.Actor{ID: id, Role: models.RoleAdmin}, nil
	case info.hasRole(agencyRole):
		if info.AgencyID == "" {
			return models.Actor{}, apperrors.NewForbiddenError("agency token carries no agency_id claim")
		}
		return models.Actor{ID: id, Role: models.RoleAgency, AgencyID: info.AgencyID}, nil
	default:
		return models.Actor{}, apperrors.NewForbiddenError("token carries no broker role")
	}
}

func isTransientHTTPError(statusCode int) bool {
	switch statusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
