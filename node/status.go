package node

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/tangrc99/Gossip/server/status"
)

type PeerStatus struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Alive   bool   `json:"alive"`
}

// Snapshot is a point in time summary of the node.
type Snapshot struct {
	Name         string       `json:"name"`
	InternalAddr string       `json:"internal_address"`
	ExternalAddr string       `json:"external_address"`
	MemoryUsed   int          `json:"memory_used"`
	Peers        []PeerStatus `json:"peers"`
}

type SlotStatus struct {
	Name    string `json:"name"`
	Version int64  `json:"version"`
	Entries int    `json:"entries"`
	Memory  int    `json:"memory"`
}

// StatusSnapshot returns a summary of the node and its peers.
func (n *Node) StatusSnapshot() *Snapshot {
	snapshot := &Snapshot{
		Name:         n.local.Name,
		InternalAddr: n.local.InternalAddr,
		ExternalAddr: n.local.ExternalAddr,
		MemoryUsed:   n.MemoryUsed(),
		Peers:        []PeerStatus{},
	}
	for _, record := range n.Peers() {
		snapshot.Peers = append(snapshot.Peers, PeerStatus{
			Name:    record.Name,
			Address: record.Address,
			Alive:   record.Alive,
		})
	}
	return snapshot
}

// Status exposes the node state via the status API.
type Status struct {
	node *Node
}

func NewStatus(node *Node) *Status {
	return &Status{
		node: node,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("", s.snapshotRoute)
	group.GET("/peers", s.listPeersRoute)
	group.GET("/peers/:name", s.getPeerRoute)
	group.GET("/slots", s.listSlotsRoute)
}

func (s *Status) snapshotRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.StatusSnapshot())
}

func (s *Status) listPeersRoute(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Peers())
}

func (s *Status) getPeerRoute(c *gin.Context) {
	peer, ok := s.node.Peer(c.Param("name"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, peer)
}

func (s *Status) listSlotsRoute(c *gin.Context) {
	slots := []SlotStatus{}
	for _, sl := range s.node.Slots() {
		slots = append(slots, SlotStatus{
			Name:    sl.Name(),
			Version: sl.Version(),
			Entries: sl.Len(),
			Memory:  sl.MemoryUsed(),
		})
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Name < slots[j].Name
	})
	c.JSON(http.StatusOK, slots)
}

var _ status.Handler = &Status{}
