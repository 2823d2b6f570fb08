package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/greenway-eco/backend/internal/directory"
	"github.com/greenway-eco/backend/internal/identity"
	"github.com/greenway-eco/backend/internal/kvstore"
	"github.com/greenway-eco/backend/internal/middleware"
	"github.com/greenway-eco/backend/internal/models"
	"github.com/greenway-eco/backend/internal/session"
)

type fakeAccount struct {
	email, password string
	role            models.Role
}

type fakeProvider struct {
	accounts  map[string]*fakeAccount
	claimErr  error
	issueErr  error
	deleteErr error
	resets    []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{accounts: map[string]*fakeAccount{}}
}

func (f *fakeProvider) cred(id string) *identity.Credential {
	a := f.accounts[id]
	return &identity.Credential{UserID: id, Email: a.email, Role: a.role, Token: "tok-" + id + "-" + string(a.role)}
}

func (f *fakeProvider) CreateAccount(_ context.Context, email, password, _ string) (*identity.Credential, error) {
	for _, a := range f.accounts {
		if a.email == email {
			return nil, identity.ErrEmailExists
		}
	}
	if len(password) < 8 {
		return nil, identity.ErrWeakPassword
	}
	id := "id" + string(rune('0'+len(f.accounts)))
	f.accounts[id] = &fakeAccount{email: email, password: password}
	return f.cred(id), nil
}

func (f *fakeProvider) Authenticate(_ context.Context, email, password string) (*identity.Credential, error) {
	for id, a := range f.accounts {
		if a.email == email && a.password == password {
			return f.cred(id), nil
		}
	}
	return nil, identity.ErrInvalidCredentials
}

func (f *fakeProvider) Refresh(_ context.Context, token string) (*identity.Credential, error) {
	for id := range f.accounts {
		if strings.HasPrefix(token, "tok-"+id+"-") {
			return f.cred(id), nil
		}
	}
	return nil, identity.ErrInvalidToken
}

func (f *fakeProvider) IssueToken(_ context.Context, userID string) (*identity.Credential, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	if _, ok := f.accounts[userID]; !ok {
		return nil, identity.ErrAccountNotFound
	}
	return f.cred(userID), nil
}

func (f *fakeProvider) SetRoleClaim(_ context.Context, userID string, role models.Role) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.accounts[userID].role = role
	return nil
}

func (f *fakeProvider) DeleteAccount(_ context.Context, userID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.accounts, userID)
	return nil
}

func (f *fakeProvider) SendPasswordReset(_ context.Context, email string) error {
	f.resets = append(f.resets, email)
	return nil
}

func (f *fakeProvider) ResetPassword(_ context.Context, token, _ string) error {
	if token != "good" {
		return identity.ErrInvalidResetToken
	}
	return nil
}

func newTestDirectory(t *testing.T) *directory.Directory {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return directory.New(kvstore.NewRedis(client, "test"))
}

func newTestRouter(t *testing.T, h *Handler, caller *session.Identity) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/signin", h.Signin)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/logout", h.Logout)
	r.POST("/auth/reset-password", h.RequestReset)
	r.POST("/auth/reset-password/confirm", h.ConfirmReset)
	authed := r.Group("", func(c *gin.Context) {
		if caller != nil {
			c.Set(middleware.ContextUserID, caller.UserID)
			c.Set(middleware.ContextUserRole, caller.Role)
			c.Set(middleware.ContextUserEmail, caller.Email)
		}
		c.Next()
	})
	authed.GET("/profile", h.GetProfile)
	authed.PATCH("/profile", h.UpdateProfile)
	authed.DELETE("/profile", h.DeleteProfile)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestSignupOwnerSavesProfileAndClaim(t *testing.T) {
	prov := newFakeProvider()
	dir := newTestDirectory(t)
	r := newTestRouter(t, NewHandler(prov, dir, false, 3600, zaptest.NewLogger(t)), nil)

	w := do(r, http.MethodPost, "/auth/signup", `{"email":"marta@example.com","password":"longenough","display_name":"Marta","role":"owner"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Data identity.Credential `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Role != models.RoleOwner {
		t.Fatalf("expected token issued after the owner claim, got %+v", body.Data)
	}
	if c := sessionCookie(w); c == nil || c.Value != body.Data.Token || !c.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", c)
	}

	p, err := dir.FetchProfile(context.Background(), models.RoleOwner, body.Data.UserID)
	if err != nil {
		t.Fatalf("expected owner profile: %v", err)
	}
	if p.DisplayName != "Marta" || p.Email != "marta@example.com" {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestSignupRejections(t *testing.T) {
	prov := newFakeProvider()
	r := newTestRouter(t, NewHandler(prov, newTestDirectory(t), false, 3600, nil), nil)

	w := do(r, http.MethodPost, "/auth/signup", `{"email":"a@example.com","password":"longenough","display_name":"A","role":"admin"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"field":"role"`) {
		t.Fatalf("expected admin signup to be rejected, got %d: %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodPost, "/auth/signup", `{"email":"a@example.com","password":"short","display_name":"A"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"field":"password"`) {
		t.Fatalf("expected weak password rejection, got %d: %s", w.Code, w.Body.String())
	}
	do(r, http.MethodPost, "/auth/signup", `{"email":"a@example.com","password":"longenough","display_name":"A"}`)
	w = do(r, http.MethodPost, "/auth/signup", `{"email":"a@example.com","password":"longenough","display_name":"A"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", w.Code)
	}
}

func TestSignupRollsBackWhenClaimFails(t *testing.T) {
	prov := newFakeProvider()
	prov.claimErr = errors.New("db down")
	dir := newTestDirectory(t)
	r := newTestRouter(t, NewHandler(prov, dir, false, 3600, nil), nil)

	w := do(r, http.MethodPost, "/auth/signup", `{"email":"b@example.com","password":"longenough","display_name":"B","role":"owner"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if len(prov.accounts) != 0 {
		t.Fatalf("expected account rollback, got %d accounts", len(prov.accounts))
	}
	owners, _ := dir.ListPartition(context.Background(), models.PartitionOwners)
	if len(owners) != 0 {
		t.Fatalf("expected profile rollback, got %+v", owners)
	}
}

func TestSignupRollsBackWhenTokenIssueFails(t *testing.T) {
	prov := newFakeProvider()
	prov.issueErr = errors.New("signing key unavailable")
	dir := newTestDirectory(t)
	r := newTestRouter(t, NewHandler(prov, dir, false, 3600, nil), nil)

	w := do(r, http.MethodPost, "/auth/signup", `{"email":"c@example.com","password":"longenough","display_name":"C","role":"owner"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
	if len(prov.accounts) != 0 {
		t.Fatalf("expected account rollback, got %d accounts", len(prov.accounts))
	}
	owners, _ := dir.ListPartition(context.Background(), models.PartitionOwners)
	if len(owners) != 0 {
		t.Fatalf("expected profile rollback, got %+v", owners)
	}
	for _, ck := range w.Result().Cookies() {
		if ck.Value != "" {
			t.Fatalf("expected no session cookie, got %+v", ck)
		}
	}
}

func TestSigninRefreshLogout(t *testing.T) {
	prov := newFakeProvider()
	r := newTestRouter(t, NewHandler(prov, newTestDirectory(t), true, 3600, nil), nil)
	do(r, http.MethodPost, "/auth/signup", `{"email":"c@example.com","password":"longenough","display_name":"C"}`)

	w := do(r, http.MethodPost, "/auth/signin", `{"email":"c@example.com","password":"wrongpass"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	w = do(r, http.MethodPost, "/auth/signin", `{"email":"c@example.com","password":"longenough"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(w)
	if cookie == nil || !cookie.Secure {
		t.Fatalf("expected secure session cookie, got %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected refresh from cookie, got %d: %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodPost, "/auth/refresh", `{"token":"forged"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", w.Code)
	}

	w = do(r, http.MethodPost, "/auth/logout", "")
	if c := sessionCookie(w); w.Code != http.StatusNoContent || c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %d %+v", w.Code, c)
	}
}

func TestPasswordResetEndpoints(t *testing.T) {
	prov := newFakeProvider()
	r := newTestRouter(t, NewHandler(prov, newTestDirectory(t), false, 3600, nil), nil)

	w := do(r, http.MethodPost, "/auth/reset-password", `{"email":"nobody@example.com"}`)
	if w.Code != http.StatusAccepted || len(prov.resets) != 1 {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	w = do(r, http.MethodPost, "/auth/reset-password/confirm", `{"token":"bad","new_password":"longenough"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad reset token, got %d", w.Code)
	}
	w = do(r, http.MethodPost, "/auth/reset-password/confirm", `{"token":"good","new_password":"longenough"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestProfileViewRenameAndDegradedView(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()
	p, _ := models.NewPerson("u1", "Ana", "ana@example.com", models.RoleUser)
	if err := dir.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	h := NewHandler(newFakeProvider(), dir, false, 3600, nil)

	r := newTestRouter(t, h, &session.Identity{UserID: "u1", Email: "ana@example.com", Role: models.RoleUser})
	w := do(r, http.MethodPatch, "/profile", `{"display_name":"  Ana Maria "}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"display_name":"Ana Maria"`) {
		t.Fatalf("expected renamed profile, got %d: %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodPatch, "/profile", `{"display_name":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", w.Code)
	}

	r = newTestRouter(t, h, &session.Identity{UserID: "ghost", Email: "ghost@example.com", Role: models.RoleOwner})
	w = do(r, http.MethodGet, "/profile", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"incomplete":true`) {
		t.Fatalf("expected degraded profile view, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDeleteProfile(t *testing.T) {
	dir := newTestDirectory(t)
	ctx := context.Background()
	prov := newFakeProvider()
	prov.accounts["o1"] = &fakeAccount{email: "o@example.com", role: models.RoleOwner}
	p, _ := models.NewPerson("o1", "Olga", "o@example.com", models.RoleOwner)
	_ = dir.SaveProfile(ctx, p)

	r := newTestRouter(t, NewHandler(prov, dir, false, 3600, nil), &session.Identity{UserID: "o1", Role: models.RoleOwner})
	w := do(r, http.MethodDelete, "/profile", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := prov.accounts["o1"]; ok {
		t.Fatalf("expected account to be deleted")
	}
	if _, err := dir.FetchProfile(ctx, models.RoleOwner, "o1"); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected profile to be removed, got %v", err)
	}

	prov.deleteErr = errors.New("db down")
	w = do(r, http.MethodDelete, "/profile", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the provider fails, got %d", w.Code)
	}
}
