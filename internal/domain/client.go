package domain

// ClientID is an opaque per-connection identifier assigned by the
// carrier. It is unique among currently-connected peers but is not
// stable across reconnects — a client that drops and rejoins gets a
// new ClientID even though it is the same human participant.
type ClientID string

// Empty reports whether the identifier is unset. An envelope carrying
// an empty ClientID on the inbound path must be dropped.
func (c ClientID) Empty() bool { return c == "" }

// ObjectID names a single live object within a container. It must be
// unique per container; see sync.Synchronizer.RegisterObject.
type ObjectID string

// ContainerID identifies the container-runtime instance that owns a
// per-container synchronizer. Two calls with the same ContainerID must
// resolve to the same synchronizer instance: exactly one per-container
// synchronizer exists per distinct container-runtime identity at any
// time.
type ContainerID string
