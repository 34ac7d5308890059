package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func validClaims(role string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  "01USERULID0000000000000000",
		"uid":  42,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func newAuthRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	grp := r.Group("/", RequireAuth(testSecret))
	if len(roles) > 0 {
		grp.Use(RequireRole(roles...))
	}
	grp.GET("/me", func(c *gin.Context) {
		uid, role := ActorFrom(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "role": role})
	})
	return r
}

func doGet(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := newAuthRouter()

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, validClaims(RoleEmployee))
		w := doGet(r, "Bearer "+token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"uid":42`)
		assert.Contains(t, w.Body.String(), `"role":"employee"`)
	})

	t.Run("missing header", func(t *testing.T) {
		w := doGet(r, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, validClaims(RoleEmployee))
		w := doGet(r, "Token "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := doGet(r, "Bearer not.a.jwt")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims(RoleEmployee)).SignedString([]byte("other-secret"))
		require.NoError(t, err)
		w := doGet(r, "Bearer "+s)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong alg", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS384, validClaims(RoleEmployee))
		w := doGet(r, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims(RoleEmployee)
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		token := signToken(t, jwt.SigningMethodHS256, claims)
		w := doGet(r, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing uid", func(t *testing.T) {
		claims := validClaims(RoleEmployee)
		delete(claims, "uid")
		token := signToken(t, jwt.SigningMethodHS256, claims)
		w := doGet(r, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	r := newAuthRouter(RoleKeeper, RoleAdmin)

	t.Run("allowed role", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, validClaims(RoleKeeper))
		w := doGet(r, "Bearer "+token)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("forbidden role", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, validClaims(RoleEmployee))
		w := doGet(r, "Bearer "+token)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("empty role claim", func(t *testing.T) {
		claims := validClaims("")
		token := signToken(t, jwt.SigningMethodHS256, claims)
		w := doGet(r, "Bearer "+token)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleKeeper, RoleDelivery, RoleEmployee} {
		assert.True(t, ValidRole(r))
	}
	assert.False(t, ValidRole("superuser"))
	assert.False(t, ValidRole(""))
}
