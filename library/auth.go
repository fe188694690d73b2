package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

const loginFailedMessage = "Login failed."

var errMissingRole = errors.New("profile has no role")

// Auth drives login, registration and session validation against the API,
// keeping the session store consistent with what the server confirmed.
type Auth struct {
	client *Client
	store  SessionStore
	users  *Users
	logger *slog.Logger
}

// NewAuth builds the workflow on top of client and its session store.
func NewAuth(client *Client) *Auth {
	return &Auth{
		client: client,
		store:  client.store,
		users:  &Users{c: client},
		logger: client.logger,
	}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// Login exchanges credentials for a token and then validates it by fetching
// the caller's profile. A successful result is only returned once both the
// token and the role are stored; if the profile fetch fails the session is
// cleared and the login is reported as failed.
//
// Rejections by the server are reported in the result. The returned error is
// reserved for transport failures and session store failures.
func (a *Auth) Login(ctx context.Context, identifier, password string) (AuthResult, error) {
	raw, err := a.client.PublicRequest(ctx, http.MethodPost, "/auth/login", loginRequest{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		var rf *RequestFailedError
		if errors.As(err, &rf) {
			msg := loginFailedMessage
			if m, ok := rf.Detail.(map[string]any); ok {
				if d := detailText(m["detail"]); d != "" {
					msg = d
				}
			}
			a.logger.Info("login rejected", "identifier", identifier, "status", rf.Status)
			return failedAuth(msg, rf), nil
		}
		return AuthResult{}, err
	}

	var lr loginResponse
	if err := json.Unmarshal(raw, &lr); err != nil || lr.AccessToken == "" {
		return failedAuth(loginFailedMessage, err), nil
	}

	if err := a.store.SetToken(lr.AccessToken); err != nil {
		return AuthResult{}, fmt.Errorf("store token: %w", err)
	}

	profile, err := a.fetchProfile(ctx)
	if err != nil {
		a.logger.Warn("profile fetch after login failed, rolling back session", "error", err)
		if clearErr := a.store.Clear(); clearErr != nil {
			return AuthResult{}, fmt.Errorf("roll back session: %w", clearErr)
		}
		return failedAuth(ErrProfileAccessDenied.Error(), fmt.Errorf("%w: %w", ErrProfileAccessDenied, err)), nil
	}

	if err := a.persistProfile(profile); err != nil {
		if clearErr := a.store.Clear(); clearErr != nil {
			a.logger.Error("roll back session failed", "error", clearErr)
		}
		return AuthResult{}, err
	}

	a.logger.Info("logged in", "identifier", identifier, "role", profile.Role)
	return AuthResult{Success: true, Role: profile.Role, Profile: profile}, nil
}

// fetchProfile loads the caller's profile. A profile without a role does not
// validate a session.
func (a *Auth) fetchProfile(ctx context.Context) (*UserProfile, error) {
	p, err := a.users.Me(ctx)
	if err != nil {
		return nil, err
	}
	if p.Role == "" {
		return nil, errMissingRole
	}
	return p, nil
}

func (a *Auth) persistProfile(p *UserProfile) error {
	if !p.Role.Known() {
		a.logger.Warn("unrecognised role, no gated action will be allowed", "role", p.Role)
	}
	if err := a.store.SetRole(p.Role); err != nil {
		return fmt.Errorf("store role: %w", err)
	}
	if err := a.store.SetDisplayName(p.DisplayName()); err != nil {
		return fmt.Errorf("store display name: %w", err)
	}
	return nil
}

// Register posts a complete user object and returns the decoded body whatever
// the status. Callers inspect Identifier and Detail to decide what happened.
func (a *Auth) Register(ctx context.Context, reg Registration) (RegisterResponse, error) {
	raw, err := a.client.PublicRequest(ctx, http.MethodPost, "/auth/register", reg)
	if err != nil {
		var rf *RequestFailedError
		if errors.As(err, &rf) {
			if m, ok := rf.Detail.(map[string]any); ok {
				return RegisterResponse(m), nil
			}
		}
		return nil, err
	}
	resp := RegisterResponse{}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}
	return resp, nil
}

// ValidateSession re-validates a stored token. It returns ErrUnauthenticated
// without a request when no token is stored. On success the stored role and
// display name are refreshed. A cancelled ctx returns ctx.Err() and leaves the
// session untouched; any other failure clears the whole session and returns
// the cause wrapped in ErrUnauthenticated.
func (a *Auth) ValidateSession(ctx context.Context) error {
	if a.store.Token() == "" {
		return ErrUnauthenticated
	}
	profile, err := a.fetchProfile(ctx)
	if err == nil {
		err = a.persistProfile(profile)
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	a.logger.Info("stored session is no longer valid", "error", err)
	if clearErr := a.store.Clear(); clearErr != nil {
		a.logger.Error("clear session failed", "error", clearErr)
	}
	return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
}

// CheckAuthOnLoad reports whether ValidateSession succeeds.
//
// Run it before any role-gated decision: a stored role alone does not prove
// the session is still live.
func (a *Auth) CheckAuthOnLoad(ctx context.Context) bool {
	return a.ValidateSession(ctx) == nil
}

// Logout clears the session. The server is not contacted.
func (a *Auth) Logout() error {
	return a.store.Clear()
}

// IsAuthenticated reports whether any token is stored.
func (a *Auth) IsAuthenticated() bool { return a.store.Token() != "" }

// IsAllowed checks the stored role against required; admin passes teacher checks.
func (a *Auth) IsAllowed(required Role) bool { return a.store.Role().Permits(required) }

func (a *Auth) IsAdmin() bool { return a.store.Role() == RoleAdmin }

// IsUser reports a regular signed-in role (teacher or student).
func (a *Auth) IsUser() bool {
	r := a.store.Role()
	return r == RoleTeacher || r == RoleStudent
}
