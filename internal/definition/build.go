package definition

import (
	"fmt"
	"log/slog"

	"github.com/smazurov/liveactivity/internal/activity"
	"github.com/smazurov/liveactivity/internal/component"
	"github.com/smazurov/liveactivity/internal/config"
	"github.com/smazurov/liveactivity/internal/depgraph"
	"github.com/smazurov/liveactivity/internal/events"
	"github.com/smazurov/liveactivity/internal/process"
)

// BuildOptions supplies the runtime pieces shared by every component.
type BuildOptions struct {
	// Launcher for native components. If nil, each uses an ExecLauncher.
	Launcher process.Launcher

	// Group samples native supervisors in the background (optional).
	Group *process.Group

	// OnStateChange receives every supervisor state change (optional).
	OnStateChange process.StateChangeCallback

	// Bus receives activity events (optional).
	Bus *events.Bus

	// Logger for the activity. If nil, uses the "activity" logger.
	Logger *slog.Logger

	// Options are appended after the ones derived from the definition.
	Options []activity.Option
}

// Assembly is a definition turned into live objects.
type Assembly struct {
	Activity   *activity.LiveActivity
	Components *component.Collection
	Settings   config.Map
}

// Build creates the activity and its components. Nothing is configured or
// started; the activity does that on its first Startup request.
func Build(def *Definition, opts *BuildOptions) (*Assembly, error) {
	var o BuildOptions
	if opts != nil {
		o = *opts
	}

	components, err := def.NewCollection(&o)
	if err != nil {
		return nil, err
	}

	settings := def.Settings()
	actOpts := []activity.Option{
		activity.WithConfig(settings),
		activity.WithForcedShutdownPolicy(def.ForcedShutdownPolicy()),
	}
	if def.UUID != "" {
		actOpts = append(actOpts, activity.WithUUID(def.UUID))
	}
	if o.Bus != nil {
		actOpts = append(actOpts, activity.WithEventBus(o.Bus))
	}
	if o.Logger != nil {
		actOpts = append(actOpts, activity.WithLogger(o.Logger))
	}
	actOpts = append(actOpts, o.Options...)

	return &Assembly{
		Activity:   activity.New(def.Name, components, actOpts...),
		Components: components,
		Settings:   settings,
	}, nil
}

// NewCollection creates the unconfigured component collection.
func (d *Definition) NewCollection(opts *BuildOptions) (*component.Collection, error) {
	var o BuildOptions
	if opts != nil {
		o = *opts
	}

	components := component.NewCollection()
	for _, spec := range d.Components {
		comp, err := newComponent(spec, &o)
		if err != nil {
			return nil, err
		}
		if err := components.Add(comp); err != nil {
			return nil, err
		}
	}
	return components, nil
}

func newComponent(spec ComponentSpec, o *BuildOptions) (component.Component, error) {
	switch spec.Type {
	case "", TypeNative:
		return component.NewNativeComponent(spec.Name, spec.KeyPrefix(), &component.NativeOptions{
			Dependencies:  spec.Dependencies,
			Launcher:      o.Launcher,
			Group:         o.Group,
			OnStateChange: o.OnStateChange,
		}), nil
	default:
		return nil, fmt.Errorf("component %s: unknown type %q", spec.Name, spec.Type)
	}
}

// Order resolves the component start order without configuring anything.
func (d *Definition) Order() ([]string, error) {
	r := depgraph.NewResolver[string]()
	for _, spec := range d.Components {
		r.AddNode(spec.Name, spec.Name)
	}
	for _, spec := range d.Components {
		r.AddDependencies(spec.Name, spec.Dependencies...)
	}
	return r.Resolve()
}
