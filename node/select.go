package node

import (
	"math/rand"
)

// selectPeers returns up to n live peers chosen uniformly at random,
// excluding peers whose names are in exclude.
func (n *Node) selectPeers(count int, exclude []string) []*PeerLink {
	if count <= 0 {
		return nil
	}

	n.peersMu.Lock()
	candidates := make([]*PeerLink, 0, len(n.peerIndex))
	for _, name := range n.peerIndex {
		candidates = append(candidates, n.peers[name])
	}
	n.peersMu.Unlock()

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	var selected []*PeerLink
	for _, peer := range candidates {
		if len(selected) == count {
			break
		}
		if !peer.Alive() || contains(exclude, peer.Name()) {
			continue
		}
		selected = append(selected, peer)
	}
	return selected
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
