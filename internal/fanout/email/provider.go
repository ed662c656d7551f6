package email

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bizpulse/internal/logger"
	"bizpulse/pkg/circuitbreaker"
	"bizpulse/pkg/metrics"
)

var ErrNoProvider = errors.New("no configured email provider available")

// Request is one rendered email ready for a provider.
type Request struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, req *Request) error
	IsConfigured() bool
}

// Registry sends through the primary provider and walks the fallbacks in
// order when it fails. Each provider sits behind its own breaker.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	breakers  map[string]*circuitbreaker.Wrapper
	primary   string
	fallback  []string
	logger    logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*circuitbreaker.Wrapper),
		logger:    log,
	}
}

// Register adds p. cb may be nil.
func (r *Registry) Register(p Provider, cb *circuitbreaker.Wrapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.breakers[p.Name()] = cb
	r.logger.Infow("Registered email provider", "name", p.Name(), "configured", p.IsConfigured())
}

func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.primary = name
	return nil
}

func (r *Registry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("provider %q not registered", name)
		}
	}
	r.fallback = append([]string(nil), names...)
	return nil
}

// order lists the configured providers to try, primary first.
func (r *Registry) order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for _, name := range append([]string{r.primary}, r.fallback...) {
		p, ok := r.providers[name]
		if !ok || seen[name] || !p.IsConfigured() {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Send returns the name of the provider that accepted the email.
func (r *Registry) Send(ctx context.Context, req *Request) (string, error) {
	names := r.order()
	if len(names) == 0 {
		return "", ErrNoProvider
	}

	var errs []error
	for i, name := range names {
		r.mu.RLock()
		p, cb := r.providers[name], r.breakers[name]
		r.mu.RUnlock()

		_, err := circuitbreaker.Do(ctx, cb, func() (struct{}, error) {
			return struct{}{}, p.Send(ctx, req)
		})
		metrics.EmailsTotal.WithLabelValues(name, metrics.StatusLabel(err)).Inc()
		if err == nil {
			return name, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		if ctx.Err() != nil {
			break
		}
		if i+1 < len(names) {
			r.logger.WarnwCtx(ctx, "Email provider failed, trying fallback",
				"provider", name,
				"fallback", names[i+1],
				"error", err,
			)
		}
	}
	return "", errors.Join(errs...)
}
