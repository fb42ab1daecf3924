package node

import "errors"

var (
	ErrEmptyName = errors.New("empty node name")
	// ErrSelfReference is returned when a request refers to the local node
	// as if it were a peer.
	ErrSelfReference = errors.New("self reference")
	ErrClosed        = errors.New("node closed")
)
