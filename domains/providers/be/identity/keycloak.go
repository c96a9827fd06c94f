package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/powerport/user-service/domains/providers/be/service"
)

const requiredActionUpdatePassword = "UPDATE_PASSWORD"

// Options configures the Keycloak admin client. Administrative credentials
// use the password grant; hardened deployments swap this for client
// credentials without changing the reconciliation behavior.
type Options struct {
	BaseURL string

	// AdminRealm hosts the administrative account (usually "master");
	// Realm is where provider users are created.
	AdminRealm string
	Realm      string

	AdminClientID string
	AdminUsername string
	AdminPassword string

	// UserRole is the realm role granted to provider admins.
	UserRole string

	// Attribute names on the user representation. Attributes are
	// multi-valued on the wire; that shape is preserved.
	TenantIDAttribute   string
	ProviderIDAttribute string
	RoleAttribute       string

	ForcePasswordUpdate  bool
	RequireEmailVerified bool

	Timeout time.Duration
}

// Client reconciles provider admin users against the Keycloak admin REST
// API. EnsureAdminUser is idempotent; each call resolves state fresh and no
// sub-step is retried internally.
type Client struct {
	http   *http.Client
	logger *zap.Logger
	opts   Options
}

// NewClient constructs a Client with defaults applied.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if strings.TrimSpace(opts.BaseURL) == "" {
		panic("identity client requires base URL")
	}
	if logger == nil {
		panic("logger is required")
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if opts.AdminRealm == "" {
		opts.AdminRealm = "master"
	}
	if opts.AdminClientID == "" {
		opts.AdminClientID = "admin-cli"
	}
	if opts.UserRole == "" {
		opts.UserRole = "Provider"
	}
	if opts.TenantIDAttribute == "" {
		opts.TenantIDAttribute = "tenantId"
	}
	if opts.ProviderIDAttribute == "" {
		opts.ProviderIDAttribute = "providerId"
	}
	if opts.RoleAttribute == "" {
		opts.RoleAttribute = "role"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	return &Client{
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger,
		opts:   opts,
	}
}

// userRep mirrors the admin API user representation. Attributes stay a
// name-to-values mapping because the protocol expects multi-valued
// attributes.
type userRep struct {
	ID              string              `json:"id,omitempty"`
	Username        string              `json:"username,omitempty"`
	Enabled         bool                `json:"enabled"`
	Email           string              `json:"email,omitempty"`
	EmailVerified   bool                `json:"emailVerified"`
	Attributes      map[string][]string `json:"attributes,omitempty"`
	RequiredActions []string            `json:"requiredActions,omitempty"`
}

type roleRep struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureAdminUser upserts the provider admin user: find by exact username,
// create or merge-update, reset the temporary password, apply required
// actions per policy, and ensure realm role membership.
func (c *Client) EnsureAdminUser(ctx context.Context, spec service.AdminUserSpec) error {
	token, err := c.adminToken(ctx)
	if err != nil {
		return err
	}

	userID, err := c.findUserID(ctx, token, spec.Username)
	if err != nil {
		return err
	}

	if userID == "" {
		userID, err = c.createUser(ctx, token, spec)
		if err != nil {
			return err
		}
		c.logger.Info("identity user created",
			zap.String("username", spec.Username),
			zap.String("user_id", userID))
	} else {
		if err := c.updateUser(ctx, token, userID, spec); err != nil {
			return err
		}
		c.logger.Info("identity user updated",
			zap.String("username", spec.Username),
			zap.String("user_id", userID))
	}

	if err := c.setPassword(ctx, token, userID, spec.TemporaryPassword); err != nil {
		return err
	}

	if c.opts.ForcePasswordUpdate {
		if err := c.setRequiredActions(ctx, token, userID, []string{requiredActionUpdatePassword}); err != nil {
			return err
		}
	}

	return c.ensureRealmRole(ctx, token, userID, c.opts.UserRole)
}

func (c *Client) adminToken(ctx context.Context) (string, error) {
	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.opts.BaseURL, c.opts.AdminRealm)

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {c.opts.AdminClientID},
		"username":   {c.opts.AdminUsername},
		"password":   {c.opts.AdminPassword},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, body, err := c.send(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &AuthenticationError{Status: status, Body: string(body)}
	}

	var tr struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &ProtocolError{Reason: "token response parse failed"}
	}
	if strings.TrimSpace(tr.AccessToken) == "" {
		return "", &ProtocolError{Reason: "token response missing access_token"}
	}
	return tr.AccessToken, nil
}

func (c *Client) findUserID(ctx context.Context, token, username string) (string, error) {
	u := fmt.Sprintf("%s/admin/realms/%s/users?username=%s&exact=true",
		c.opts.BaseURL, c.opts.Realm, url.QueryEscape(username))

	status, body, err := c.doJSON(ctx, http.MethodGet, u, token, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &ProviderError{Op: "user search", Status: status, Body: string(body)}
	}

	var users []userRep
	if err := json.Unmarshal(body, &users); err != nil {
		return "", &ProtocolError{Reason: "user search response parse failed"}
	}
	if len(users) == 0 {
		return "", nil
	}
	return users[0].ID, nil
}

func (c *Client) createUser(ctx context.Context, token string, spec service.AdminUserSpec) (string, error) {
	u := fmt.Sprintf("%s/admin/realms/%s/users", c.opts.BaseURL, c.opts.Realm)

	rep := userRep{
		Username:      spec.Username,
		Enabled:       true,
		Email:         spec.Email,
		EmailVerified: c.opts.RequireEmailVerified,
		Attributes:    c.desiredAttributes(nil, spec),
	}

	req, err := c.jsonRequest(ctx, http.MethodPost, u, token, rep)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity provider request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", &ProviderError{Op: "user create", Status: resp.StatusCode, Body: string(body)}
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return "", &ProtocolError{Reason: "user create response missing Location header"}
	}
	parts := strings.Split(location, "/")
	return parts[len(parts)-1], nil
}

// updateUser performs a full-representation write built from the current
// state, so attributes not owned by provisioning survive the update.
func (c *Client) updateUser(ctx context.Context, token, userID string, spec service.AdminUserSpec) error {
	current, err := c.getUser(ctx, token, userID)
	if err != nil {
		return err
	}

	rep := userRep{
		ID:            userID,
		Username:      spec.Username,
		Enabled:       true,
		Email:         spec.Email,
		EmailVerified: c.opts.RequireEmailVerified,
		Attributes:    c.desiredAttributes(current.Attributes, spec),
	}

	u := fmt.Sprintf("%s/admin/realms/%s/users/%s", c.opts.BaseURL, c.opts.Realm, userID)
	status, body, err := c.doJSON(ctx, http.MethodPut, u, token, rep)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &ProviderError{Op: "user update", Status: status, Body: string(body)}
	}
	return nil
}

// desiredAttributes merges the provisioning-owned attributes into the
// existing bag. Unrelated attributes pass through untouched; the provider-id
// attribute is removed when no provider id is supplied.
func (c *Client) desiredAttributes(existing map[string][]string, spec service.AdminUserSpec) map[string][]string {
	attrs := make(map[string][]string, len(existing)+3)
	for k, v := range existing {
		attrs[k] = v
	}

	role := "User"
	tenantID := spec.ProviderID
	if spec.ProviderID != "" {
		role = "Provider"
		attrs[c.opts.ProviderIDAttribute] = []string{spec.ProviderID}
	} else {
		delete(attrs, c.opts.ProviderIDAttribute)
	}

	attrs[c.opts.TenantIDAttribute] = []string{tenantID}
	attrs[c.opts.RoleAttribute] = []string{role}
	return attrs
}

func (c *Client) getUser(ctx context.Context, token, userID string) (userRep, error) {
	u := fmt.Sprintf("%s/admin/realms/%s/users/%s", c.opts.BaseURL, c.opts.Realm, userID)

	status, body, err := c.doJSON(ctx, http.MethodGet, u, token, nil)
	if err != nil {
		return userRep{}, err
	}
	if status != http.StatusOK {
		return userRep{}, &ProviderError{Op: "user fetch", Status: status, Body: string(body)}
	}

	var rep userRep
	if err := json.Unmarshal(body, &rep); err != nil {
		return userRep{}, &ProtocolError{Reason: "user fetch response parse failed"}
	}
	return rep, nil
}

func (c *Client) setPassword(ctx context.Context, token, userID, password string) error {
	u := fmt.Sprintf("%s/admin/realms/%s/users/%s/reset-password", c.opts.BaseURL, c.opts.Realm, userID)

	payload := map[string]any{
		"type":      "password",
		"value":     password,
		"temporary": true,
	}
	status, body, err := c.doJSON(ctx, http.MethodPut, u, token, payload)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &ProviderError{Op: "password reset", Status: status, Body: string(body)}
	}
	return nil
}

func (c *Client) setRequiredActions(ctx context.Context, token, userID string, actions []string) error {
	current, err := c.getUser(ctx, token, userID)
	if err != nil {
		return err
	}
	current.ID = userID
	current.RequiredActions = actions

	u := fmt.Sprintf("%s/admin/realms/%s/users/%s", c.opts.BaseURL, c.opts.Realm, userID)
	status, body, err := c.doJSON(ctx, http.MethodPut, u, token, current)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &ProviderError{Op: "required actions update", Status: status, Body: string(body)}
	}
	return nil
}

// ensureRealmRole assigns the realm role to the user. The admin API treats
// re-assigning an already-held role as a no-op, so the call is idempotent.
func (c *Client) ensureRealmRole(ctx context.Context, token, userID, roleName string) error {
	u := fmt.Sprintf("%s/admin/realms/%s/roles/%s", c.opts.BaseURL, c.opts.Realm, url.PathEscape(roleName))

	status, body, err := c.doJSON(ctx, http.MethodGet, u, token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &ProviderError{Op: "role fetch", Status: status, Body: string(body)}
	}

	var role roleRep
	if err := json.Unmarshal(body, &role); err != nil {
		return &ProtocolError{Reason: "role fetch response parse failed"}
	}

	u = fmt.Sprintf("%s/admin/realms/%s/users/%s/role-mappings/realm", c.opts.BaseURL, c.opts.Realm, userID)
	status, body, err = c.doJSON(ctx, http.MethodPost, u, token, []roleRep{role})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &ProviderError{Op: "role assignment", Status: status, Body: string(body)}
	}
	return nil
}

func (c *Client) jsonRequest(ctx context.Context, method, u, token string, payload any) (*http.Request, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, u, token string, payload any) (int, []byte, error) {
	req, err := c.jsonRequest(ctx, method, u, token, payload)
	if err != nil {
		return 0, nil, err
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("identity provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read identity provider response: %w", err)
	}
	return resp.StatusCode, body, nil
}

var _ service.IdentityReconciler = (*Client)(nil)
