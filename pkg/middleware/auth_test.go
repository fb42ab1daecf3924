package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/tangrc99/Gossip/pkg/log"
)

func testRouter(handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.GET("/", handler, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuth_Verify(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		auth := NewAuth("secret", log.NewNopLogger())
		router := testRouter(auth.Verify)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TokenHeader, "secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("mismatch", func(t *testing.T) {
		auth := NewAuth("secret", log.NewNopLogger())
		router := testRouter(auth.Verify)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TokenHeader, "wrong")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusPreconditionFailed, w.Code)
		assert.JSONEq(t, `{"error": "token not matched"}`, w.Body.String())
	})

	t.Run("prefix", func(t *testing.T) {
		auth := NewAuth("secret", log.NewNopLogger())
		router := testRouter(auth.Verify)

		for _, token := range []string{"secre", "secret2", "SECRET"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(TokenHeader, token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusPreconditionFailed, w.Code, token)
		}
	})

	t.Run("missing", func(t *testing.T) {
		auth := NewAuth("secret", log.NewNopLogger())
		router := testRouter(auth.Verify)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	})

	t.Run("no token configured", func(t *testing.T) {
		auth := NewAuth("", log.NewNopLogger())
		router := testRouter(auth.Verify)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("loopback not exempt", func(t *testing.T) {
		auth := NewAuth("secret", log.NewNopLogger())
		router := testRouter(auth.Verify)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	})
}

func TestAuth_VerifyRemote(t *testing.T) {
	t.Run("loopback", func(t *testing.T) {
		auth := NewAuth("secret", log.NewNopLogger())
		router := testRouter(auth.VerifyRemote)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("remote", func(t *testing.T) {
		auth := NewAuth("secret", log.NewNopLogger())
		router := testRouter(auth.VerifyRemote)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.26.104.14:5000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	})
}
