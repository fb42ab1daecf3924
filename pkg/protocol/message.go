package protocol

// Messages exchanged with the node client API.

type PutRequest struct {
	Value string `json:"value"`
}

type VersionResponse struct {
	Version int64 `json:"version"`
}

type GetResponse struct {
	Value string `json:"value"`
}

// Value is a value for a key in one node's slot.
type Value struct {
	Owner   string `json:"owner"`
	Value   string `json:"value"`
	Version int64  `json:"version"`
}

type ConnectRequest struct {
	Address string `json:"address"`
}

// ConnectResponse contains the connect error, or an empty string if the
// node connected.
type ConnectResponse struct {
	Error string `json:"error"`
}

type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

type EchoResponse struct {
	Value string `json:"value"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
