package middleware

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tangrc99/Gossip/pkg/log"
)

const (
	// TokenHeader is the request header carrying the shared cluster token.
	TokenHeader = "token"
)

var (
	ErrTokenMismatch = errors.New("token not matched")
)

// Auth is middleware to verify the request token matches the node token.
type Auth struct {
	token  string
	logger log.Logger
}

func NewAuth(token string, logger log.Logger) *Auth {
	return &Auth{
		token:  token,
		logger: logger,
	}
}

// Verify verifies the request token.
//
// If the node has no token configured, all requests are accepted. Otherwise
// a request whose token doesn't match gets 412.
func (m *Auth) Verify(c *gin.Context) {
	if m.token == "" {
		c.Next()
		return
	}

	if !m.match(c.Request.Header.Get(TokenHeader)) {
		m.logger.Warn(
			"auth token mismatch",
			zap.String("path", c.FullPath()),
			zap.String("client-ip", c.ClientIP()),
		)
		c.AbortWithStatusJSON(
			http.StatusPreconditionFailed,
			gin.H{"error": ErrTokenMismatch.Error()},
		)
		return
	}

	c.Next()
}

func (m *Auth) match(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(m.token)) == 1
}

// VerifyRemote is like Verify except requests from a loopback address are
// always accepted.
func (m *Auth) VerifyRemote(c *gin.Context) {
	if IsLoopback(c) {
		c.Next()
		return
	}
	m.Verify(c)
}

// IsLoopback returns whether the request peer is a loopback address. Only
// the connection address is used, forwarding headers are ignored.
func IsLoopback(c *gin.Context) bool {
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
