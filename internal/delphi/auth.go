package delphi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/digitalcoach/delphi-import/internal/tokenfile"
)

// DefaultPortalURL is the portal server used for one-time code registration.
const DefaultPortalURL = "https://portal.askdelphi.com"

// refreshBuffer is how long before expiry a credential is treated as
// expired. Refreshing early avoids handing out a token that dies mid-call.
const refreshBuffer = 300 * time.Second

// defaultSessionLifetime is assumed when the session endpoint omits
// expiresIn.
const defaultSessionLifetime = 3600 * time.Second

// Credential is a bearer token that is valid at the moment it is handed
// out. ExpiresAt is always in the future when a CredentialSource returns one.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// CredentialSource produces valid bearer credentials for the Client.
// Refresh bypasses the expiry buffer; the Client calls it after a 401.
type CredentialSource interface {
	Credential(ctx context.Context) (Credential, error)
	Refresh(ctx context.Context) (Credential, error)
}

// CacheStore persists portal tokens across runs. FileStore is the durable
// implementation; tests inject an in-memory one.
type CacheStore interface {
	Load() (*tokenfile.Record, error)
	Save(*tokenfile.Record) error
}

// FileStore is a CacheStore backed by a token cache file on disk.
type FileStore struct {
	Path string
}

func (s FileStore) Load() (*tokenfile.Record, error) {
	return tokenfile.Load(s.Path)
}

func (s FileStore) Save(rec *tokenfile.Record) error {
	return tokenfile.Save(s.Path, rec)
}

// decodeExpiry extracts the exp claim from a JWT without verifying its
// signature. This is a client deciding when to refresh, not a verifier.
func decodeExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}

	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: decoding token: %v", ErrAuth, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("%w: token has no exp claim", ErrAuth)
	}

	return exp.Time, nil
}

// TraditionalSource exchanges a static API key plus tenant identity for a
// short-lived session token via POST {base}/auth/session. The token is
// held in memory only; lifetime (default 3600s) exceeds a single run.
type TraditionalSource struct {
	baseURL    string
	apiKey     string
	tenant     string
	ntAccount  string
	acl        []string
	projectID  string
	httpClient *http.Client
	logger     *slog.Logger

	// now is the clock. Tests override it to probe the refresh boundary.
	now func() time.Time

	cred Credential
}

// NewTraditionalSource creates a session-token credential source.
func NewTraditionalSource(
	baseURL, apiKey, tenant, ntAccount string,
	acl []string,
	projectID string,
	httpClient *http.Client,
	logger *slog.Logger,
) *TraditionalSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &TraditionalSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		tenant:     tenant,
		ntAccount:  ntAccount,
		acl:        acl,
		projectID:  projectID,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *TraditionalSource) Credential(ctx context.Context) (Credential, error) {
	if s.cred.Token != "" && s.now().Before(s.cred.ExpiresAt.Add(-refreshBuffer)) {
		return s.cred, nil
	}

	return s.Refresh(ctx)
}

// Refresh requests a fresh session token unconditionally.
func (s *TraditionalSource) Refresh(ctx context.Context) (Credential, error) {
	body := map[string]any{
		"apiKey":    s.apiKey,
		"tenant":    s.tenant,
		"ntAccount": s.ntAccount,
		"acl":       s.acl,
		"projectId": s.projectID,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Credential{}, fmt.Errorf("delphi: encoding session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/auth/session", strings.NewReader(string(payload)))
	if err != nil {
		return Credential{}, fmt.Errorf("delphi: creating session request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	s.logger.Debug("requesting session token", slog.String("tenant", s.tenant))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("delphi: session token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return Credential{}, fmt.Errorf("%w: session token request returned HTTP %d: %s",
			ErrAuth, resp.StatusCode, string(data))
	}

	var parsed struct {
		SessionToken string `json:"sessionToken"`
		ExpiresIn    int64  `json:"expiresIn"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Credential{}, fmt.Errorf("%w: decoding session response: %v", ErrAuth, err)
	}

	if parsed.SessionToken == "" {
		return Credential{}, fmt.Errorf("%w: session response missing sessionToken", ErrAuth)
	}

	lifetime := defaultSessionLifetime
	if parsed.ExpiresIn > 0 {
		lifetime = time.Duration(parsed.ExpiresIn) * time.Second
	}

	s.cred = Credential{
		Token:     parsed.SessionToken,
		ExpiresAt: s.now().Add(lifetime),
	}

	s.logger.Info("session token acquired",
		slog.Time("expires_at", s.cred.ExpiresAt),
	)

	return s.cred, nil
}

// PortalSource authenticates via the portal code registration flow and
// caches tokens across runs. On first use a one-time portal code is
// exchanged for access/refresh tokens; the access token is then traded
// for an editing API token. Subsequent runs reuse the cached record,
// refreshing the access token when the API token nears expiry.
type PortalSource struct {
	scope      Scope
	portalURL  string
	portalCode string
	store      CacheStore
	httpClient *http.Client
	logger     *slog.Logger

	now func() time.Time

	rec    *tokenfile.Record
	loaded bool
	// codeSpent guards the one-time portal code: a failed exchange is
	// terminal for the run, never retried with the same code.
	codeSpent bool

	cred Credential
}

// NewPortalSource creates a cache-mode credential source. portalCode may
// be empty when a cached record is expected to exist.
func NewPortalSource(
	scope Scope,
	portalURL, portalCode string,
	store CacheStore,
	httpClient *http.Client,
	logger *slog.Logger,
) *PortalSource {
	if portalURL == "" {
		portalURL = DefaultPortalURL
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PortalSource{
		scope:      scope,
		portalURL:  strings.TrimRight(portalURL, "/"),
		portalCode: portalCode,
		store:      store,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Scope returns the tenant/project/ACL scope this source authenticates for.
func (s *PortalSource) Scope() Scope {
	return s.scope
}

func (s *PortalSource) Credential(ctx context.Context) (Credential, error) {
	if s.cred.Token != "" && s.now().Before(s.cred.ExpiresAt.Add(-refreshBuffer)) {
		return s.cred, nil
	}

	return s.Refresh(ctx)
}

// Refresh derives a fresh API token, renewing the underlying access token
// first when a refresh token is available.
func (s *PortalSource) Refresh(ctx context.Context) (Credential, error) {
	fresh, err := s.ensureTokens(ctx)
	if err != nil {
		return Credential{}, err
	}

	// Renew the access token when possible. Tokens straight from the portal
	// exchange are already fresh; a failed renewal is not fatal because the
	// existing access token may still be accepted below.
	if !fresh && s.rec.RefreshToken != "" {
		if err := s.refreshTokens(ctx); err != nil {
			s.logger.Warn("token refresh failed, trying existing access token",
				slog.String("error", err.Error()),
			)
		}
	}

	cred, err := s.fetchAPIToken(ctx)
	if err != nil {
		return Credential{}, err
	}

	s.cred = cred

	return s.cred, nil
}

// ensureTokens loads the cached record on first use; absent a cache it
// performs the one-time portal code exchange. The returned bool reports
// whether the tokens came straight from a portal exchange.
func (s *PortalSource) ensureTokens(ctx context.Context) (bool, error) {
	if s.rec != nil {
		return false, nil
	}

	if !s.loaded {
		s.loaded = true

		rec, err := s.store.Load()
		if err != nil {
			return false, err
		}

		if rec != nil {
			s.logger.Debug("loaded cached portal tokens",
				slog.Time("saved_at", rec.SavedAt),
			)
			s.rec = rec

			return false, nil
		}
	}

	if err := s.exchangePortalCode(ctx); err != nil {
		return false, err
	}

	return true, nil
}

// exchangePortalCode trades the one-time portal code for access/refresh
// tokens and persists them. The code is never retried after a failure.
func (s *PortalSource) exchangePortalCode(ctx context.Context) error {
	if s.portalCode == "" {
		return fmt.Errorf("%w: no cached tokens and no portal code configured", ErrNotLoggedIn)
	}

	if s.codeSpent {
		return fmt.Errorf("%w: portal code already used this run (codes are single-use)", ErrAuth)
	}

	s.codeSpent = true

	reqURL := s.portalURL + "/api/session/registration?sessionCode=" + url.QueryEscape(s.portalCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("delphi: creating registration request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	s.logger.Info("exchanging portal code for tokens")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delphi: portal code exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: portal code exchange returned HTTP %d (codes are single-use, obtain a fresh one): %s",
			ErrAuth, resp.StatusCode, string(data))
	}

	var parsed struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		URL          string `json:"url"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("%w: decoding registration response: %v", ErrAuth, err)
	}

	if parsed.AccessToken == "" {
		return fmt.Errorf("%w: registration response missing accessToken", ErrAuth)
	}

	pubURL, err := normalizePublicationURL(parsed.URL)
	if err != nil {
		return err
	}

	s.rec = &tokenfile.Record{
		AccessToken:    parsed.AccessToken,
		RefreshToken:   parsed.RefreshToken,
		PublicationURL: pubURL,
	}

	if err := s.store.Save(s.rec); err != nil {
		return fmt.Errorf("delphi: persisting portal tokens: %w", err)
	}

	s.logger.Info("portal tokens acquired",
		slog.String("publication_url", pubURL),
	)

	return nil
}

// normalizePublicationURL reduces the portal's full publication page URL
// to scheme://host. The portal returns a deep link; API calls need only
// the base.
func normalizePublicationURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: registration response missing publication url", ErrAuth)
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: invalid publication url %q", ErrAuth, raw)
	}

	return u.Scheme + "://" + u.Host, nil
}

// refreshTokens renews the access token pair using the refresh token and
// persists the updated record.
func (s *PortalSource) refreshTokens(ctx context.Context) error {
	q := url.Values{}
	q.Set("token", s.rec.AccessToken)
	q.Set("refreshToken", s.rec.RefreshToken)

	reqURL := s.rec.PublicationURL + "/api/token/refresh?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("delphi: creating refresh request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.rec.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delphi: token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("delphi: token refresh returned HTTP %d", resp.StatusCode)
	}

	// The refresh endpoint has been seen answering with either short or
	// long field names.
	var parsed struct {
		Token        string `json:"token"`
		AccessToken  string `json:"accessToken"`
		Refresh      string `json:"refresh"`
		RefreshToken string `json:"refreshToken"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("delphi: decoding refresh response: %w", err)
	}

	if tok := firstNonEmpty(parsed.Token, parsed.AccessToken); tok != "" {
		s.rec.AccessToken = tok
	}

	if ref := firstNonEmpty(parsed.Refresh, parsed.RefreshToken); ref != "" {
		s.rec.RefreshToken = ref
	}

	if err := s.store.Save(s.rec); err != nil {
		return fmt.Errorf("delphi: persisting refreshed tokens: %w", err)
	}

	s.logger.Info("access token refreshed")

	return nil
}

// fetchAPIToken trades the access token for an editing API token. The
// response is either a bare JSON string or an object wrapping the token,
// optionally with an explicit lifetime.
func (s *PortalSource) fetchAPIToken(ctx context.Context) (Credential, error) {
	reqURL := s.rec.PublicationURL + "/api/token/EditingApiToken"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("delphi: creating API token request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.rec.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("delphi: API token request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Credential{}, fmt.Errorf("delphi: reading API token response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Credential{}, fmt.Errorf("%w: API token request returned HTTP %d: %s",
			ErrAuth, resp.StatusCode, string(data))
	}

	token, expiresIn, err := parseAPITokenResponse(data)
	if err != nil {
		return Credential{}, err
	}

	var expiresAt time.Time

	if expiresIn > 0 {
		expiresAt = s.now().Add(time.Duration(expiresIn) * time.Second)
	} else {
		expiresAt, err = decodeExpiry(token)
		if err != nil {
			return Credential{}, err
		}
	}

	s.logger.Debug("editing API token acquired",
		slog.Time("expires_at", expiresAt),
	)

	return Credential{Token: token, ExpiresAt: expiresAt}, nil
}

// parseAPITokenResponse accepts the two shapes the endpoint answers with:
// a bare JSON string, or an object with a token/accessToken field.
func parseAPITokenResponse(data []byte) (string, int64, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil && bare != "" {
		return validateAPIToken(bare, 0)
	}

	var obj struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}

	if err := json.Unmarshal(data, &obj); err != nil {
		return "", 0, fmt.Errorf("%w: unparseable API token response: %v", ErrAuth, err)
	}

	return validateAPIToken(firstNonEmpty(obj.Token, obj.AccessToken), obj.ExpiresIn)
}

func validateAPIToken(token string, expiresIn int64) (string, int64, error) {
	if token == "" {
		return "", 0, fmt.Errorf("%w: API token response contained no token", ErrAuth)
	}

	// A JWT always starts with a base64url-encoded JSON header. Anything
	// else is usually an HTML error page from a wrong publication URL.
	if !strings.HasPrefix(token, "eyJ") {
		return "", 0, fmt.Errorf("%w: API token does not look like a JWT (wrong publication URL?)", ErrAuth)
	}

	return token, expiresIn, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
