package sync

import (
	"sync"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/signaling"
)

// Facade is the per-object handle an application holds: constructing
// one registers (id, obj) with the container's Synchronizer, acquiring
// it if this is the first live object in the container; disposing
// unregisters and releases.
type Facade struct {
	sync *Synchronizer
	id   domain.ObjectID

	disposeOnce sync.Once
}

// NewFacade constructs and registers a live object. Attempting to
// construct a second facade for the same (container, id) returns
// ErrDuplicateRegistration synchronously — this is the one error that
// escapes the protocol layer to the caller.
func NewFacade(runtime signaling.ContainerRuntimeSignaler, id domain.ObjectID, obj Object) (*Facade, error) {
	synchronizer := Acquire(runtime)
	if err := synchronizer.RegisterObject(id, obj); err != nil {
		synchronizer.Release()
		return nil, err
	}
	return &Facade{sync: synchronizer, id: id}, nil
}

// Dispose is idempotent: it unregisters the object and releases the
// container synchronizer's refcount exactly once no matter how many
// times it is called.
func (f *Facade) Dispose() {
	f.disposeOnce.Do(func() {
		f.sync.UnregisterObject(f.id)
		f.sync.Release()
	})
}

// ID returns the object id this facade was constructed with.
func (f *Facade) ID() domain.ObjectID { return f.id }
