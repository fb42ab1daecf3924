package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-sockaddr"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/log"
	"github.com/tangrc99/Gossip/server/api"
	"github.com/tangrc99/Gossip/server/config"
	"github.com/tangrc99/Gossip/server/peer"
)

// Server runs a cluster node, including the node daemon, the peer RPC server
// and the client API server.
type Server struct {
	node *node.Node

	peerLn     net.Listener
	peerServer *peer.Server

	apiLn     net.Listener
	apiServer *api.Server

	registry *prometheus.Registry

	runCtx    context.Context
	runCancel func()
	runErr    error
	runDone   chan struct{}
	startOnce sync.Once

	conf *config.Config

	logger log.Logger
}

// NewServer creates the node and binds the configured listeners.
//
// If the node has no name, a random name is generated. Unset advertise
// addresses are derived from the bound listener addresses.
func NewServer(conf *config.Config, logger log.Logger) (*Server, error) {
	if conf.Node.Name == "" {
		conf.Node.Name = conf.Node.NamePrefix + generateName()
	}

	s := &Server{
		registry: prometheus.NewRegistry(),
		runDone:  make(chan struct{}),
		conf:     conf,
		logger:   logger,
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())

	if conf.Peer.BindAddr != "" {
		ln, err := net.Listen("tcp", conf.Peer.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("peer listen: %s: %w", conf.Peer.BindAddr, err)
		}
		s.peerLn = ln

		if conf.Peer.AdvertiseAddr == "" {
			addr, err := advertiseAddrFromListenAddr(ln.Addr().String())
			if err != nil {
				ln.Close()
				return nil, fmt.Errorf("peer: %w", err)
			}
			conf.Peer.AdvertiseAddr = addr
		}
	}

	if conf.API.BindAddr != "" {
		ln, err := net.Listen("tcp", conf.API.BindAddr)
		if err != nil {
			s.closeListeners()
			return nil, fmt.Errorf("api listen: %s: %w", conf.API.BindAddr, err)
		}
		s.apiLn = ln

		if conf.API.AdvertiseAddr == "" {
			addr, err := advertiseAddrFromListenAddr(ln.Addr().String())
			if err != nil {
				s.closeListeners()
				return nil, fmt.Errorf("api: %w", err)
			}
			conf.API.AdvertiseAddr = addr
		}
	}

	n, err := node.New(node.LocalNode{
		Name:         conf.Node.Name,
		InternalAddr: conf.Peer.AdvertiseAddr,
		ExternalAddr: conf.API.AdvertiseAddr,
	}, &conf.Node, peer.NewTransport(), node.WithLogger(logger))
	if err != nil {
		s.closeListeners()
		return nil, fmt.Errorf("node: %w", err)
	}
	n.Metrics().Register(s.registry)
	s.node = n

	if s.peerLn != nil {
		s.peerServer = peer.NewServer(n, logger)
	}
	if s.apiLn != nil {
		s.apiServer = api.NewServer(n, s.registry, logger)
		s.apiServer.AddStatus("/node", node.NewStatus(n))
	}

	return s, nil
}

func (s *Server) Config() *config.Config {
	return s.conf
}

func (s *Server) Node() *node.Node {
	return s.node
}

// Run runs the node until the context is cancelled or a client requests the
// node shuts down, then gracefully shuts down within the grace period.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting node", zap.Any("conf", s.conf))

	var group rungroup.Group

	// Termination handler.
	group.Add(func() error {
		select {
		case <-ctx.Done():
			s.logger.Info("shutdown requested")
		case <-s.runCtx.Done():
		}
		return nil
	}, func(error) {
		s.runCancel()
	})

	// Node daemon. Returns when interrupted or a client requests the node
	// shuts down, after notifying the cluster the node is leaving.
	daemonCtx, daemonCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		if err := s.node.Run(daemonCtx); err != nil {
			return fmt.Errorf("node: %w", err)
		}
		s.logger.Info("left cluster")
		return nil
	}, func(error) {
		daemonCancel()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.conf.GracePeriod,
		)
		defer cancel()

		if err := s.node.Close(shutdownCtx); err != nil && !errors.Is(err, node.ErrClosed) {
			s.logger.Warn("failed to gracefully close node", zap.Error(err))
		}

		s.logger.Info("node closed")
	})

	if s.peerServer != nil {
		group.Add(func() error {
			if err := s.peerServer.Serve(s.peerLn); err != nil {
				return fmt.Errorf("peer server serve: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				s.conf.GracePeriod,
			)
			defer cancel()

			if err := s.peerServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("failed to gracefully shutdown peer server", zap.Error(err))
			}

			s.logger.Info("peer server shut down")
		})
	} else {
		s.logger.Info("peer listener disabled")
	}

	if s.apiServer != nil {
		group.Add(func() error {
			if err := s.apiServer.Serve(s.apiLn); err != nil {
				return fmt.Errorf("api server serve: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				s.conf.GracePeriod,
			)
			defer cancel()

			if err := s.apiServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("failed to gracefully shutdown api server", zap.Error(err))
			}

			s.logger.Info("api server shut down")
		})
	} else {
		s.logger.Info("api listener disabled")
	}

	// Join after binding the peer listener so joined nodes can reach this
	// node. Joining in the background lets the servers start accepting
	// connections while unreachable nodes are retried.
	if len(s.conf.Cluster.Join) > 0 {
		joinCtx, joinCancel := context.WithCancel(context.Background())
		group.Add(func() error {
			if err := s.join(joinCtx); err != nil {
				return err
			}
			<-joinCtx.Done()
			return nil
		}, func(error) {
			joinCancel()
		})
	}

	if err := group.Run(); err != nil {
		return err
	}

	s.logger.Info("shutdown complete")

	return nil
}

// Start runs the node in the background.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		go func() {
			s.runErr = s.Run(s.runCtx)
			close(s.runDone)
		}()
	})
}

// Shutdown stops a node started with Start and waits for it to exit.
func (s *Server) Shutdown() error {
	s.runCancel()
	<-s.runDone
	return s.runErr
}

func (s *Server) join(ctx context.Context) error {
	joinCtx, cancel := context.WithTimeout(ctx, s.conf.Cluster.JoinTimeout)
	defer cancel()

	names, err := s.node.Join(joinCtx, s.conf.Cluster.Join)
	if len(names) > 0 {
		s.logger.Info(
			"joined cluster",
			zap.Strings("nodes", names),
		)
	}
	if err != nil {
		if s.conf.Cluster.AbortIfJoinFails && len(names) == 0 {
			return fmt.Errorf("join cluster: %w", err)
		}
		s.logger.Warn("failed to join nodes", zap.Error(err))
	}
	return nil
}

func (s *Server) closeListeners() {
	if s.peerLn != nil {
		s.peerLn.Close()
	}
	if s.apiLn != nil {
		s.apiLn.Close()
	}
}

func generateName() string {
	return uuid.New().String()[:7]
}

// advertiseAddrFromListenAddr returns the address to advertise for a bound
// listener. If the listener is bound to all interfaces, the nodes private IP
// is used.
func advertiseAddrFromListenAddr(listenAddr string) (string, error) {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", fmt.Errorf("invalid listen addr: %s: %w", listenAddr, err)
	}

	ip := net.ParseIP(host)
	if host == "" || (ip != nil && ip.IsUnspecified()) {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", errors.New("no private ip found")
		}
		return net.JoinHostPort(ip, port), nil
	}
	return listenAddr, nil
}
