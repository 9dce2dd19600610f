package httpkit

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"estate_portal_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secrets struct{ jwt, trigger string }

func (s secrets) GetJWTAccessSecret() string { return s.jwt }
func (s secrets) GetTriggerToken() string    { return s.trigger }

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func newTestEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		id := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"userId": id.UserID(), "admin": id.IsAdmin()})
	})
	engine.GET("/x", handlers...)
	return engine
}

func get(engine *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequiredAcceptsAccessToken(t *testing.T) {
	cfg := secrets{jwt: "k"}
	userID := uuid.New()
	engine := newTestEngine(AuthRequired(cfg))

	raw := signed(t, "k", jwt.MapClaims{
		"sub":   userID.String(),
		"type":  "access",
		"roles": []string{RoleAdmin},
		"exp":   time.Now().Add(time.Minute).Unix(),
	})
	rec := get(engine, "Authorization", "Bearer "+raw)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), userID.String())
	assert.Contains(t, rec.Body.String(), `"admin":true`)
}

func TestAuthRequiredRejectsBadTokens(t *testing.T) {
	cfg := secrets{jwt: "k"}
	engine := newTestEngine(AuthRequired(cfg))
	userID := uuid.NewString()

	cases := map[string]string{
		"missing":       "",
		"wrong secret":  "Bearer " + signed(t, "other", jwt.MapClaims{"sub": userID, "type": "access"}),
		"refresh token": "Bearer " + signed(t, "k", jwt.MapClaims{"sub": userID, "type": "refresh"}),
		"bad subject":   "Bearer " + signed(t, "k", jwt.MapClaims{"sub": "nobody", "type": "access"}),
		"expired":       "Bearer " + signed(t, "k", jwt.MapClaims{"sub": userID, "type": "access", "exp": time.Now().Add(-time.Minute).Unix()}),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec := get(engine, "Authorization", header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireAnyRole(t *testing.T) {
	withRoles := func(roles ...string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(ContextUserIDKey, uuid.New())
			c.Set(ContextRolesKey, roles)
		}
	}

	allowed := newTestEngine(withRoles(RoleAgent), RequireAnyRole(RoleAgent, RoleAdmin))
	assert.Equal(t, http.StatusOK, get(allowed, "", "").Code)

	denied := newTestEngine(withRoles(RoleAgent), RequireRole(RoleAdmin))
	assert.Equal(t, http.StatusForbidden, get(denied, "", "").Code)
}

func TestTriggerTokenRequired(t *testing.T) {
	disabled := newTestEngine(TriggerTokenRequired(secrets{}))
	assert.Equal(t, http.StatusServiceUnavailable, get(disabled, TriggerTokenHeader, "anything").Code)

	engine := newTestEngine(TriggerTokenRequired(secrets{trigger: "s"}))
	assert.Equal(t, http.StatusUnauthorized, get(engine, TriggerTokenHeader, "x").Code)
	assert.Equal(t, http.StatusOK, get(engine, TriggerTokenHeader, "s").Code)
}

func TestIntakeRateLimiterBlocksBursts(t *testing.T) {
	engine := newTestEngine(NewIntakeRateLimiter(nil).RateLimit())
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, get(engine, "", "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(engine, "", "").Code)
}

func TestHandleErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{apperr.NotFound("lead not found"), http.StatusNotFound, "lead not found"},
		{apperr.Conflict("lead already has an owner"), http.StatusConflict, "lead already has an owner"},
		{apperr.Forbidden("agent is inactive"), http.StatusForbidden, "agent is inactive"},
		{apperr.Wrap(apperr.KindInternal, "update failed", errors.New("pg down")), http.StatusInternalServerError, "internal server error"},
		{errors.New("plain"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		gin.SetMode(gin.TestMode)
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)

		assert.True(t, HandleError(c, tc.err))
		assert.Equal(t, tc.status, rec.Code)
		assert.Contains(t, rec.Body.String(), tc.message)
		assert.NotContains(t, rec.Body.String(), "pg down")
	}
	assert.False(t, HandleError(nil, nil))
}
