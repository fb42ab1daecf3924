package peer

import (
	"github.com/tangrc99/Gossip/node"
	"github.com/tangrc99/Gossip/pkg/rpc"
)

// Transport creates gRPC clients for peers.
type Transport struct {
}

func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) Dial(addr string) (node.PeerClient, error) {
	client, err := rpc.Dial(addr)
	if err != nil {
		return nil, err
	}
	return client, nil
}

var _ node.Transport = &Transport{}
