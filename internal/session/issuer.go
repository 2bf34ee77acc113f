package session

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"segportal/internal/pkg/apperr"
	jwtsvc "segportal/internal/pkg/jwt"
	"segportal/internal/pkg/logger"
)

const contextKey = "session"

type Config struct {
	Secret     string
	CookieName string
	CookiePath string
	Secure     bool
	SameSite   string
	TTL        time.Duration
}

type Issuer struct {
	store  Store
	tokens *jwtsvc.Service
	cfg    Config
	log    *logger.Logger
}

func NewIssuer(store Store, cfg Config, log *logger.Logger) *Issuer {
	if cfg.CookieName == "" {
		cfg.CookieName = "segportal_session"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Issuer{
		store:  store,
		tokens: jwtsvc.New(cfg.Secret, cfg.TTL),
		cfg:    cfg,
		log:    log.With("service", "SessionIssuer"),
	}
}

// Start stores a fresh binding and hands the client a cookie naming it. A
// binding the request already carries is dropped first.
func (i *Issuer) Start(c *gin.Context, username, externalToken string) (*Binding, error) {
	if prev, err := i.Current(c); err == nil {
		if err := i.store.Delete(c.Request.Context(), prev.ID); err != nil {
			i.log.Warn("failed to drop previous session", "error", err.Error())
		}
		c.Set(contextKey, (*Binding)(nil))
	}

	b := &Binding{
		ID:            uuid.NewString(),
		Username:      username,
		ExternalToken: externalToken,
		CreatedAt:     time.Now().UTC(),
	}
	if err := i.store.Save(c.Request.Context(), b, i.cfg.TTL); err != nil {
		return nil, apperr.Persistence(err)
	}

	signed, err := i.tokens.GenerateToken(b.ID, username)
	if err != nil {
		_ = i.store.Delete(c.Request.Context(), b.ID)
		return nil, err
	}

	i.setCookie(c, signed, int(i.cfg.TTL.Seconds()))
	c.Set(contextKey, b)
	return b, nil
}

// Current resolves the binding for the request. It never panics: any missing,
// forged, expired or ended session is reported as apperr.ErrUnauthenticated.
func (i *Issuer) Current(c *gin.Context) (*Binding, error) {
	if v, ok := c.Get(contextKey); ok {
		if b, ok := v.(*Binding); ok && b != nil {
			return b, nil
		}
	}

	raw, err := c.Cookie(i.cfg.CookieName)
	if err != nil || strings.TrimSpace(raw) == "" {
		return nil, apperr.New(apperr.ErrUnauthenticated, "no session")
	}
	claims, err := i.tokens.ValidateToken(raw)
	if err != nil {
		return nil, apperr.New(apperr.ErrUnauthenticated, "invalid session")
	}

	b, err := i.store.Get(c.Request.Context(), claims.SessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			i.log.Warn("session lookup failed", "error", err.Error())
		}
		return nil, apperr.New(apperr.ErrUnauthenticated, "session expired")
	}
	if b.Username != claims.Subject {
		return nil, apperr.New(apperr.ErrUnauthenticated, "invalid session")
	}

	c.Set(contextKey, b)
	return b, nil
}

func (i *Issuer) CurrentUser(c *gin.Context) (string, error) {
	b, err := i.Current(c)
	if err != nil {
		return "", err
	}
	return b.Username, nil
}

// End removes the binding and clears the cookie. Ending an absent session is a no-op.
func (i *Issuer) End(c *gin.Context) error {
	var storeErr error
	if b, err := i.Current(c); err == nil {
		storeErr = i.store.Delete(c.Request.Context(), b.ID)
	}
	c.Set(contextKey, (*Binding)(nil))
	i.setCookie(c, "", -1)
	if storeErr != nil {
		return apperr.Persistence(storeErr)
	}
	return nil
}

func (i *Issuer) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(sameSiteMode(i.cfg.SameSite))
	c.SetCookie(i.cfg.CookieName, value, maxAge, i.cfg.CookiePath, "", i.cfg.Secure, true)
}

func sameSiteMode(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// FromContext returns the binding a previous Current call resolved for this
// request, if any.
func FromContext(c *gin.Context) (*Binding, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	b, ok := v.(*Binding)
	return b, ok && b != nil
}
