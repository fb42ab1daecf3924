package peer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/log"
	"github.com/tangrc99/Gossip/pkg/rpc"
)

// Server handles RPCs from peer nodes.
type Server struct {
	grpcServer *grpc.Server

	logger log.Logger
}

func NewServer(n *node.Node, logger log.Logger) *Server {
	logger = logger.WithSubsystem("peer.server")

	server := &Server{
		logger: logger,
	}
	server.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(server.recoverInterceptor),
	)
	rpc.RegisterPeerServer(server.grpcServer, &handler{
		node:   n,
		logger: logger,
	})
	return server
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info(
		"starting peer server",
		zap.String("addr", ln.Addr().String()),
	)

	if err := s.grpcServer.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Shutdown attempts to gracefully shutdown the server by waiting for pending
// RPCs to complete. If the context is cancelled first, the remaining RPCs are
// cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.grpcServer.Stop()
		return ctx.Err()
	}
}

func (s *Server) recoverInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(
				"handler panic",
				zap.String("method", info.FullMethod),
				zap.Any("err", r),
			)
			err = status.Error(codes.Aborted, "exception threw")
		}
	}()
	return handler(ctx, req)
}

type handler struct {
	node   *node.Node
	logger log.Logger
}

func (h *handler) Connect(_ context.Context, req *rpc.NodeInfo) (*rpc.NodeInfo, error) {
	info, err := h.node.OnConnect(req.Name, req.Address, req.Version)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return info, nil
}

func (h *handler) Echo(_ context.Context, req *rpc.Echo) (*rpc.Echo, error) {
	if req.Key == rpc.EchoKey {
		return &rpc.Echo{Key: req.Key, Value: rpc.EchoValue}, nil
	}
	return &rpc.Echo{Key: req.Key, Value: req.Value}, nil
}

func (h *handler) Pull(_ context.Context, req *rpc.SlotUpdate) (*rpc.UpdateResult, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, node.ErrEmptyName.Error())
	}

	version, err := h.node.OnPull(req.Name, req.Entries, req.Version, req.Visited)
	if err != nil {
		h.logger.Debug(
			"pull: not applied",
			zap.String("slot", req.Name),
			zap.Int64("version", req.Version),
			zap.Error(err),
		)
	}
	return &rpc.UpdateResult{
		Version: version,
		Succeed: err == nil,
	}, nil
}

func (h *handler) Heartbeat(_ context.Context, req *rpc.NodeVersion) (*rpc.NodeVersion, error) {
	if req.Node == "" {
		return nil, status.Error(codes.InvalidArgument, node.ErrEmptyName.Error())
	}

	return &rpc.NodeVersion{
		Node:    h.node.Name(),
		Slot:    req.Slot,
		Version: h.node.OnHeartbeat(req.Node, req.Slot, req.Version),
	}, nil
}

func (h *handler) NewNodeNotify(_ context.Context, req *rpc.NodeInfo) (*rpc.UpdateResult, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, node.ErrEmptyName.Error())
	}

	accepted := h.node.OnNewPeerNotice(req.Name, req.Address, req.Version, req.Visited)
	return &rpc.UpdateResult{
		Succeed: accepted,
	}, nil
}

func (h *handler) DeleteNodeNotify(_ context.Context, req *rpc.NodeInfo) (*rpc.UpdateResult, error) {
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, node.ErrEmptyName.Error())
	}

	h.node.OnPeerDepartedNotice(req.Name, req.Address, req.Version, req.Visited)
	return &rpc.UpdateResult{
		Succeed: true,
	}, nil
}

var _ rpc.PeerServer = &handler{}
