// Package depgraph linearizes named nodes so that every node comes after
// the nodes it depends on.
//
// A Resolver walks the graph depth first in insertion order and records nodes
// in post-order. Non-tree edges are classified as back, forward or cross
// edges from their entry and exit times; a back edge means the graph has a
// cycle and resolution fails without producing an ordering.
//
//	r := depgraph.NewResolver[*Server]()
//	r.AddNode("web", web)
//	r.AddNode("router", router)
//	r.AddDependencies("router", "web")
//	ordered, err := r.Resolve() // web, router
package depgraph

import (
	"errors"
	"fmt"
)

// ErrCycle is matched by every CycleError.
var ErrCycle = errors.New("dependency cycle")

// CycleError names the edge that closed a cycle: From depends on To, and To
// is still on the walk stack.
type CycleError struct {
	From string
	To   string
}

func (e *CycleError) Error() string {
	if e.From == e.To {
		return fmt.Sprintf("dependency cycle: %q depends on itself", e.From)
	}
	return fmt.Sprintf("dependency cycle: %q and %q depend on each other", e.From, e.To)
}

// Is reports whether target is ErrCycle.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// EdgeKind classifies an edge encountered during a walk.
type EdgeKind int

// Edge kinds.
const (
	EdgeTree EdgeKind = iota
	EdgeBack
	EdgeForward
	EdgeCross
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeTree:
		return "tree"
	case EdgeBack:
		return "back"
	case EdgeForward:
		return "forward"
	case EdgeCross:
		return "cross"
	default:
		return "unknown"
	}
}

// Edge is a dependency edge as seen by a walk: From depends on To.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Option configures a Resolver.
type Option func(*options)

type options struct {
	observer func(Edge)
}

// WithEdgeObserver registers a callback invoked for every edge the walk
// classifies, in walk order.
func WithEdgeObserver(fn func(Edge)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

type node[T any] struct {
	payload    T
	hasPayload bool
	deps       []string
	depSet     map[string]struct{}
}

// Resolver collects nodes and dependency edges and resolves them into a
// dependency-satisfying order. It is not safe for concurrent use.
type Resolver[T any] struct {
	nodes map[string]*node[T]
	order []string
	opts  options
}

// NewResolver creates an empty resolver.
func NewResolver[T any](opts ...Option) *Resolver[T] {
	r := &Resolver[T]{
		nodes: make(map[string]*node[T]),
	}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

// AddNode registers name with its payload. Adding a name twice replaces the
// payload and keeps the original insertion position.
func (r *Resolver[T]) AddNode(name string, payload T) {
	n := r.getOrCreate(name)
	n.payload = payload
	n.hasPayload = true
}

// AddDependencies records that name depends on every entry of deps. Names
// that were never added with AddNode take part in the walk but are left out
// of the resolved ordering.
func (r *Resolver[T]) AddDependencies(name string, deps ...string) {
	n := r.getOrCreate(name)
	for _, dep := range deps {
		if _, seen := n.depSet[dep]; seen {
			continue
		}
		n.depSet[dep] = struct{}{}
		n.deps = append(n.deps, dep)
		r.getOrCreate(dep)
	}
}

// Names returns every known node name in insertion order, including names
// only referenced as dependencies.
func (r *Resolver[T]) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of known nodes.
func (r *Resolver[T]) Len() int {
	return len(r.order)
}

func (r *Resolver[T]) getOrCreate(name string) *node[T] {
	if n, ok := r.nodes[name]; ok {
		return n
	}
	n := &node[T]{depSet: make(map[string]struct{})}
	r.nodes[name] = n
	r.order = append(r.order, name)
	return n
}

// Resolve returns the payloads ordered so that dependencies precede their
// dependents. A cycle aborts the walk with a *CycleError.
func (r *Resolver[T]) Resolve() ([]T, error) {
	w := &walk[T]{
		r:     r,
		state: make(map[string]*visitState, len(r.order)),
		post:  make([]string, 0, len(r.order)),
	}

	for _, name := range r.order {
		if w.get(name).discovered {
			continue
		}
		if err := w.visit(name); err != nil {
			return nil, err
		}
	}

	ordered := make([]T, 0, len(w.post))
	for _, name := range w.post {
		if n := r.nodes[name]; n.hasPayload {
			ordered = append(ordered, n.payload)
		}
	}
	return ordered, nil
}

// visitState is the per-walk bookkeeping for one node.
type visitState struct {
	discovered bool
	processed  bool
	entry      int
	exit       int
	parent     string
}

type walk[T any] struct {
	r     *Resolver[T]
	state map[string]*visitState
	clock int
	post  []string
}

func (w *walk[T]) get(name string) *visitState {
	s, ok := w.state[name]
	if !ok {
		s = &visitState{}
		w.state[name] = s
	}
	return s
}

func (w *walk[T]) visit(name string) error {
	s := w.get(name)
	s.discovered = true
	w.clock++
	s.entry = w.clock

	for _, dep := range w.r.nodes[name].deps {
		ds := w.get(dep)
		if !ds.discovered {
			ds.parent = name
			w.observe(Edge{From: name, To: dep, Kind: EdgeTree})
			if err := w.visit(dep); err != nil {
				return err
			}
			continue
		}

		kind := classify(s, ds)
		w.observe(Edge{From: name, To: dep, Kind: kind})
		if kind == EdgeBack {
			return &CycleError{From: name, To: dep}
		}
	}

	w.clock++
	s.exit = w.clock
	s.processed = true
	w.post = append(w.post, name)
	return nil
}

// classify labels a non-tree edge from an in-progress node to an already
// discovered one.
func classify(from, to *visitState) EdgeKind {
	switch {
	case !to.processed:
		return EdgeBack
	case to.entry > from.entry:
		return EdgeForward
	default:
		return EdgeCross
	}
}

func (w *walk[T]) observe(e Edge) {
	if w.r.opts.observer != nil {
		w.r.opts.observer(e)
	}
}
