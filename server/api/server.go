package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/log"
	"github.com/tangrc99/Gossip/pkg/middleware"
	"github.com/tangrc99/Gossip/pkg/protocol"
	"github.com/tangrc99/Gossip/pkg/rpc"
	"github.com/tangrc99/Gossip/pkg/slot"
	"github.com/tangrc99/Gossip/server/status"
)

// Server is the client facing HTTP server. It exposes the key/value API,
// cluster operations and endpoints for metrics, health and inspecting the
// node status.
type Server struct {
	node *node.Node

	registry *prometheus.Registry

	httpServer *http.Server

	router *gin.Engine

	logger log.Logger
}

func NewServer(
	n *node.Node,
	registry *prometheus.Registry,
	logger log.Logger,
) *Server {
	logger = logger.WithSubsystem("api")

	router := gin.New()
	server := &Server{
		node:     n,
		registry: registry,
		httpServer: &http.Server{
			Handler:  router,
			ErrorLog: logger.StdLogger(zapcore.WarnLevel),
		},
		router: router,
		logger: logger,
	}

	// Recover from panics.
	router.Use(gin.CustomRecoveryWithWriter(nil, server.panicRoute))

	router.Use(middleware.NewLogger(logger))
	if registry != nil {
		metrics := middleware.NewMetrics("api")
		metrics.Register(registry)
		router.Use(metrics.Handler())
	}

	server.registerRoutes(router)

	return server
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info(
		"starting api server",
		zap.String("addr", ln.Addr().String()),
	)

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown attempts to gracefully shutdown the server by waiting for pending
// requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) AddStatus(route string, handler status.Handler) {
	group := s.router.Group("/status").Group(route)
	handler.Register(group)
}

func (s *Server) registerRoutes(router *gin.Engine) {
	auth := middleware.NewAuth(s.node.Token(), s.logger)

	v1 := router.Group("/v1")
	// Echo is registered before the auth middleware as local callers may use
	// echo to discover the token.
	v1.GET("/echo", auth.VerifyRemote, s.echoRoute)

	v1.Use(auth.Verify)
	v1.PUT("/keys/:key", s.putRoute)
	v1.GET("/keys/:key", s.getRoute)
	v1.DELETE("/keys/:key", s.deleteRoute)
	v1.GET("/keys/:key/all", s.getAllRoute)
	v1.POST("/connect", s.connectRoute)
	v1.POST("/shutdown", s.shutdownRoute)

	router.GET("/health", s.healthRoute)

	if s.registry != nil {
		router.GET("/metrics", s.metricsHandler())
	}
}

func (s *Server) putRoute(c *gin.Context) {
	var req protocol.PutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, protocol.ErrorResponse{
			Error: "invalid request body",
		})
		return
	}

	version, err := s.node.Write(c.Param("key"), req.Value)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.VersionResponse{Version: version})
}

func (s *Server) getRoute(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		s.writeError(c, slot.ErrEmptyKey)
		return
	}

	value, ok := s.node.ReadLocal(key)
	if !ok {
		s.writeError(c, slot.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, protocol.GetResponse{Value: value})
}

func (s *Server) deleteRoute(c *gin.Context) {
	version, err := s.node.Remove(c.Param("key"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.VersionResponse{Version: version})
}

func (s *Server) getAllRoute(c *gin.Context) {
	latest := c.Query("latest") == "true"

	values := []protocol.Value{}
	for _, v := range s.node.ReadAll(c.Param("key"), latest) {
		values = append(values, protocol.Value{
			Owner:   v.Owner,
			Value:   v.Value,
			Version: v.Version,
		})
	}
	c.JSON(http.StatusOK, values)
}

func (s *Server) connectRoute(c *gin.Context) {
	var req protocol.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Address == "" {
		c.JSON(http.StatusBadRequest, protocol.ErrorResponse{
			Error: "missing address",
		})
		return
	}

	if _, err := s.node.ConnectTo(c.Request.Context(), req.Address); err != nil {
		s.logger.Warn(
			"connect failed",
			zap.String("addr", req.Address),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, protocol.ConnectResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, protocol.ConnectResponse{})
}

func (s *Server) shutdownRoute(c *gin.Context) {
	accepted := s.node.RequestShutdown()
	if accepted {
		s.logger.Info("shutdown requested", zap.String("client-ip", c.ClientIP()))
	}
	c.JSON(http.StatusOK, protocol.ShutdownResponse{Accepted: accepted})
}

func (s *Server) echoRoute(c *gin.Context) {
	if middleware.IsLoopback(c) && s.node.Token() != "" {
		c.Header(middleware.TokenHeader, s.node.Token())
	}
	c.JSON(http.StatusOK, protocol.EchoResponse{Value: rpc.EchoValue})
}

func (s *Server) healthRoute(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, slot.ErrEmptyKey):
		c.JSON(http.StatusBadRequest, protocol.ErrorResponse{
			Error: slot.ErrEmptyKey.Error(),
		})
	case errors.Is(err, slot.ErrNotFound):
		c.JSON(http.StatusNotFound, protocol.ErrorResponse{
			Error: slot.ErrNotFound.Error(),
		})
	default:
		s.logger.Error(
			"request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, protocol.ErrorResponse{
			Error: "internal error",
		})
	}
}

func (s *Server) panicRoute(c *gin.Context, err any) {
	s.logger.Error(
		"handler panic",
		zap.String("path", c.FullPath()),
		zap.Any("err", err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, protocol.ErrorResponse{
		Error: "exception threw",
	})
}

func (s *Server) metricsHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(
		s.registry,
		promhttp.HandlerOpts{Registry: s.registry},
	)
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func init() {
	// Disable Gin debug logs.
	gin.SetMode(gin.ReleaseMode)
}
