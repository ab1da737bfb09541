package track

import (
	"context"
)

// Session owns a tracked entity graph. It holds the root collection, routes
// every engine operation through the configured observability hooks, and
// carries the registry the traversals consult. A Session and the graph it
// tracks belong to one goroutine at a time; none of the mutation paths are
// synchronized.
type Session struct {
	registry *Registry
	roots    *Collection
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	clock    Clock
}

// Option configures optional session collaborators.
type Option func(*Session)

// WithLogger installs a structured logger. A nil logger keeps the default
// no-op implementation.
func WithLogger(l Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer installs a tracer.
func WithTracer(t Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the time source used for operation durations.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewSession creates an empty session whose roots hold entities of rootKind.
// The kind must already be registered.
func NewSession(reg *Registry, rootKind string, opts ...Option) (*Session, error) {
	if reg == nil {
		return nil, InvalidArgumentError{Name: "registry", Reason: "must not be nil"}
	}
	if _, ok := reg.Descriptor(rootKind); !ok {
		return nil, ConfigurationError{Kind: rootKind, Reason: "kind is not registered"}
	}
	s := &Session{
		registry: reg,
		logger:   noopLogger{},
		metrics:  noopMetrics{},
		tracer:   noopTracer{},
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.roots = NewCollection(rootKind)
	s.roots.session = s
	s.roots.tracking = true
	return s, nil
}

// Registry returns the registry the session traverses with.
func (s *Session) Registry() *Registry { return s.registry }

// Roots returns the root collection. Adding or removing entities on it after
// Track follows normal tracked-collection semantics.
func (s *Session) Roots() *Collection { return s.roots }

// Track attaches root entities as the session baseline. States the entities
// already carry are preserved, so graphs pre-marked by a caller come in as-is
// and fresh graphs come in StateUnchanged. Every collection reachable from
// the roots starts intercepting, and every reachable entity starts recording
// scalar edits. Attaching fails without side effects on the failing root if
// the graph reaches a kind missing from the registry.
func (s *Session) Track(roots ...Trackable) error {
	restore := s.roots.SuspendTracking()
	defer restore()
	for _, r := range roots {
		if err := s.roots.Add(r); err != nil {
			return err
		}
	}
	return nil
}

// wire walks the identity graph below root, pointing every reachable
// collection at this session and every reachable entity at its owning
// collection. Entities held only by reference get their standalone recording
// flag instead. Kinds are assumed validated; unknown kinds are left inert.
func (s *Session) wire(root Trackable, enableTracking bool) {
	seen := make(map[*Tracking]struct{})
	var visit func(Trackable)
	visit = func(e Trackable) {
		if e == nil {
			return
		}
		t := e.tracking()
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		if t.container == nil {
			t.recording = true
		}
		d, ok := s.registry.Descriptor(e.Kind())
		if !ok {
			return
		}
		for _, p := range d.References {
			visit(p.Get(e))
		}
		for _, p := range d.Collections {
			col := p.Get(e)
			if col == nil {
				continue
			}
			col.session = s
			if enableTracking {
				col.tracking = true
			}
			for _, item := range col.items {
				item.tracking().container = col
				visit(item)
			}
			for _, del := range col.deleted {
				del.tracking().container = col
				visit(del)
			}
		}
	}
	visit(root)
}

// run executes one engine operation under the session's observability hooks:
// a span around the call, a metrics observation with the outcome, and a log
// line on completion.
func (s *Session) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Error("session operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Debug("session operation completed", "operation", operation, "duration", duration)
	}
	return err
}
