package worker

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/viant/offload/model/types"
	"github.com/viant/offload/protocol"
	"github.com/viant/x"
)

// Registry indexes action services by name and keeps a type registry of
// their input/output types so that payloads can be decoded into typed values
// on both sides of the protocol.
type Registry struct {
	types    *x.Registry
	services map[string]types.Service
	mux      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    x.NewRegistry(),
		services: make(map[string]types.Service),
	}
}

// Register adds an action service and records its method types.
func (r *Registry) Register(service types.Service) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.services[service.Name()] = service
	for _, signature := range service.Methods() {
		if signature.Input != nil {
			r.types.Register(x.NewType(signature.Input))
		}
		if signature.Output != nil {
			r.types.Register(x.NewType(signature.Output))
		}
	}
}

// Lookup resolves an operation to its executable and signature. Operations
// outside the closed protocol set are rejected before any service lookup.
func (r *Registry) Lookup(operation protocol.Operation) (types.Executable, *types.Signature, error) {
	if !operation.Known() {
		return nil, nil, fmt.Errorf("operation %q outside supported set", operation)
	}
	r.mux.RLock()
	service, ok := r.services[operation.Service()]
	r.mux.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("service %q not registered", operation.Service())
	}
	method := operation.Method()
	executable, err := service.Method(method)
	if err != nil {
		return nil, nil, err
	}
	signature := service.Methods().Lookup(method)
	if signature == nil {
		return nil, nil, types.NewMethodNotFoundError(method)
	}
	return executable, signature, nil
}

// newInstancePtr creates a pointer to a fresh value of the given type.
func newInstancePtr(t reflect.Type) interface{} {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}
