package admin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"intake/pkg/requestcontext"
)

type fakeAuth struct {
	devToken     string
	sessionUser  *requestcontext.AdminUser
	assertionFor map[string]requestcontext.AdminUser
	issueErr     error
	issued       int
}

func (f *fakeAuth) CheckDevToken(candidate string) bool {
	return f.devToken != "" && candidate == f.devToken
}

func (f *fakeAuth) IssueSession(_ context.Context, _ requestcontext.AdminUser) (*http.Cookie, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	f.issued++
	return &http.Cookie{Name: "iap_session", Value: "signed", HttpOnly: true, SameSite: http.SameSiteLaxMode}, nil
}

func (f *fakeAuth) SessionFromRequest(r *http.Request) (requestcontext.AdminUser, error) {
	if c, err := r.Cookie("iap_session"); err == nil && c.Value == "signed" && f.sessionUser != nil {
		return *f.sessionUser, nil
	}
	return requestcontext.AdminUser{}, errors.New("no session")
}

func (f *fakeAuth) VerifyAssertion(_ context.Context, token string) (requestcontext.AdminUser, error) {
	if u, ok := f.assertionFor[token]; ok {
		return u, nil
	}
	return requestcontext.AdminUser{}, errors.New("bad assertion")
}

type countingMetrics struct{ modes []string }

func (m *countingMetrics) IncAdminSession(mode string) { m.modes = append(m.modes, mode) }

// GateSuite checks that no request reaches an admin handler without one
// of the admission paths succeeding.
type GateSuite struct {
	suite.Suite
	auth    *fakeAuth
	metrics *countingMetrics
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.auth = &fakeAuth{
		devToken:     "let-me-in",
		sessionUser:  &requestcontext.AdminUser{Email: "dev-token"},
		assertionFor: map[string]requestcontext.AdminUser{"good": {Email: "ana@bank.test", UserID: "accounts.google.com:1"}},
	}
	s.metrics = &countingMetrics{}
}

func (s *GateSuite) serve(development bool, req *http.Request) (*httptest.ResponseRecorder, *requestcontext.AdminUser) {
	var seen *requestcontext.AdminUser
	h := Gate(Config{
		Auth:        s.auth,
		Development: development,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:     s.metrics,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := requestcontext.GetAdminUser(r.Context()); ok {
			seen = &u
		}
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, seen
}

func (s *GateSuite) TestDevTokenIssuesSession() {
	w, user := s.serve(false, httptest.NewRequest(http.MethodGet, "/api/admin/solicitudes?token=let-me-in", nil))

	s.Equal(http.StatusOK, w.Code)
	s.Require().NotNil(user)
	s.Equal(ModeDevToken, user.Mode)
	s.Equal(1, s.auth.issued)
	s.Contains(w.Header().Get("Set-Cookie"), "iap_session=signed")
	s.Equal([]string{ModeDevToken}, s.metrics.modes)
}

func (s *GateSuite) TestWrongDevTokenIsRejected() {
	w, user := s.serve(false, httptest.NewRequest(http.MethodGet, "/api/admin/solicitudes?token=guess", nil))

	s.Equal(http.StatusUnauthorized, w.Code)
	s.Nil(user)
	s.Empty(w.Header().Get("Set-Cookie"))
}

func (s *GateSuite) TestSessionFailureToIssueIsRejected() {
	s.auth.issueErr = errors.New("signing failed")
	w, user := s.serve(true, httptest.NewRequest(http.MethodGet, "/api/admin/solicitudes?token=let-me-in", nil))

	s.Equal(http.StatusUnauthorized, w.Code)
	s.Nil(user)
}

func (s *GateSuite) TestSessionCookie() {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.AddCookie(&http.Cookie{Name: "iap_session", Value: "signed"})
	w, user := s.serve(false, req)

	s.Equal(http.StatusOK, w.Code)
	s.Equal(ModeSession, user.Mode)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.AddCookie(&http.Cookie{Name: "iap_session", Value: "dev_mode"})
	w, _ = s.serve(false, req)
	s.Equal(http.StatusUnauthorized, w.Code, "unsigned legacy cookie value is not a session")
}

func (s *GateSuite) TestAssertionHeader() {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set(HeaderAssertion, "good")
	w, user := s.serve(false, req)

	s.Equal(http.StatusOK, w.Code)
	s.Equal("ana@bank.test", user.Email)
	s.Equal(ModeIAP, user.Mode)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set(HeaderAssertion, "forged")
	w, _ = s.serve(false, req)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *GateSuite) TestDevelopmentPassThrough() {
	w, user := s.serve(true, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	s.Equal(http.StatusOK, w.Code)
	s.Equal(ModeDevelopment, user.Mode)

	w, _ = s.serve(false, httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	s.Equal(http.StatusUnauthorized, w.Code)
	s.JSONEq(`{"error":"unauthorized","error_description":"admin identity required"}`, w.Body.String())
}
