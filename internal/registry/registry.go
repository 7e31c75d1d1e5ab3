// Package registry houses the in-memory maps of local and remote resources.
// The two maps are guarded by independent reader/writer locks; operations on
// distinct maps are not mutually ordered.
package registry

import (
	"sync"

	"github.com/omaps-oss/resman/internal/model"
)

type Registry struct {
	localMu sync.RWMutex
	local   map[string]model.LocalResource

	remoteMu sync.RWMutex
	remote   map[string]model.RemoteResource
}

func New() *Registry {
	return &Registry{
		local:  map[string]model.LocalResource{},
		remote: map[string]model.RemoteResource{},
	}
}

// Local returns a snapshot of the installed resources. The slice is owned by
// the caller and safe to iterate without any lock held.
func (r *Registry) Local() []model.LocalResource {
	r.localMu.RLock()
	defer r.localMu.RUnlock()
	res := make([]model.LocalResource, 0, len(r.local))
	for _, v := range r.local {
		res = append(res, v)
	}
	return res
}

func (r *Registry) LocalByName(name string) (model.LocalResource, bool) {
	r.localMu.RLock()
	defer r.localMu.RUnlock()
	v, ok := r.local[name]
	return v, ok
}

func (r *Registry) IsInstalled(name string) bool {
	r.localMu.RLock()
	defer r.localMu.RUnlock()
	_, ok := r.local[name]
	return ok
}

// UpdateLocal runs fn with the live local map under the writer lock. If fn
// returns an error, any mutations it already made to the map are kept; fn is
// responsible for mutating only on success paths.
func (r *Registry) UpdateLocal(fn func(local map[string]model.LocalResource) error) error {
	r.localMu.Lock()
	defer r.localMu.Unlock()
	return fn(r.local)
}

// ReplaceLocal swaps the whole local map.
func (r *Registry) ReplaceLocal(local map[string]model.LocalResource) {
	r.localMu.Lock()
	defer r.localMu.Unlock()
	r.local = local
}

// Remote returns a snapshot of the repository index.
func (r *Registry) Remote() []model.RemoteResource {
	r.remoteMu.RLock()
	defer r.remoteMu.RUnlock()
	res := make([]model.RemoteResource, 0, len(r.remote))
	for _, v := range r.remote {
		res = append(res, v)
	}
	return res
}

func (r *Registry) RemoteByName(name string) (model.RemoteResource, bool) {
	r.remoteMu.RLock()
	defer r.remoteMu.RUnlock()
	v, ok := r.remote[name]
	return v, ok
}

// ReplaceRemote swaps the whole remote map. A failed refresh never calls
// this, so the index is either fully replaced or untouched.
func (r *Registry) ReplaceRemote(remote map[string]model.RemoteResource) {
	r.remoteMu.Lock()
	defer r.remoteMu.Unlock()
	r.remote = remote
}
