package gateway

import (
	"fmt"
	"sync"

	"github.com/angelmondragon/paylink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/paylink-backend/pkg/errors"
)

// Registry maps payment methods to the integrator that should serve them.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Integrator
	byMethod map[enums.PaymentMethod]string
}

// NewRegistry returns an empty integrator registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   map[string]Integrator{},
		byMethod: map[enums.PaymentMethod]string{},
	}
}

// Register adds an integrator under its reported name.
func (r *Registry) Register(integrator Integrator) error {
	if integrator == nil {
		return fmt.Errorf("integrator is required")
	}
	name := integrator.Name()
	if name == "" {
		return fmt.Errorf("integrator name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("integrator %q already registered", name)
	}
	r.byName[name] = integrator
	return nil
}

// Bind routes a payment method to a registered integrator.
func (r *Registry) Bind(method enums.PaymentMethod, name string) error {
	if !method.IsValid() {
		return fmt.Errorf("invalid payment method %q", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; !exists {
		return fmt.Errorf("integrator %q not registered", name)
	}
	r.byMethod[method] = name
	return nil
}

// Get returns the integrator registered under name.
func (r *Registry) Get(name string) (Integrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	integrator, ok := r.byName[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("gateway %q not registered", name))
	}
	return integrator, nil
}

// Resolve returns the integrator bound to the payment method.
func (r *Registry) Resolve(method enums.PaymentMethod) (Integrator, error) {
	r.mu.RLock()
	name, ok := r.byMethod[method]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no gateway bound for method %q", method))
	}
	return r.Get(name)
}
