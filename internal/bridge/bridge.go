package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/filter"
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/observe"
	"github.com/roach88/storebridge/internal/transport"
)

// Mode selects how observations leave the page.
type Mode string

const (
	// ModeAnnotate reports every dispatch to the annotation sink only.
	ModeAnnotate Mode = "annotate"

	// ModeRelay additionally posts protocol envelopes over the transport.
	ModeRelay Mode = "relay"
)

// Bridge instruments stores and reports what they dispatch.
//
// Thread-safety: a Bridge is safe for concurrent use. Work triggered by a
// dispatch runs synchronously on the dispatching goroutine.
type Bridge struct {
	registry   *Registry
	options    config.Options
	filters    *filter.Engine
	normalizer *config.Normalizer
	recorder   *observe.Recorder
	sink       observe.AnnotationSink
	transport  transport.Transport
	page       PageAllowChecker
	pageURL    *string
	mode       Mode
	title      string
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithRegistry shares a registry between bridges, or resumes one.
func WithRegistry(r *Registry) Option {
	return func(b *Bridge) {
		b.registry = r
	}
}

// WithOptions sets the global devtools options.
func WithOptions(opts config.Options) Option {
	return func(b *Bridge) {
		b.options = opts
	}
}

// WithSink sets the annotation sink. Default: events are discarded.
func WithSink(sink observe.AnnotationSink) Option {
	return func(b *Bridge) {
		b.sink = sink
	}
}

// WithTransport sets the transport envelopes are posted to.
func WithTransport(t transport.Transport) Option {
	return func(b *Bridge) {
		b.transport = t
	}
}

// WithPageChecker sets the page allow check. Default: AllowAll, or a
// URLAllowChecker when WithPageURL is given.
func WithPageChecker(c PageAllowChecker) Option {
	return func(b *Bridge) {
		b.page = c
	}
}

// WithPageURL checks the page URL against the options' URL patterns.
func WithPageURL(url string) Option {
	return func(b *Bridge) {
		b.pageURL = &url
	}
}

// WithMode sets the mode. Default: ModeAnnotate.
func WithMode(m Mode) Option {
	return func(b *Bridge) {
		b.mode = m
	}
}

// WithTitle sets the page title used to name the first instance.
func WithTitle(title string) Option {
	return func(b *Bridge) {
		b.title = title
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithClock sets the time source used for action timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		b.now = now
	}
}

// New creates a Bridge.
func New(opts ...Option) (*Bridge, error) {
	b := &Bridge{
		mode:   ModeAnnotate,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}

	switch b.mode {
	case ModeAnnotate:
	case ModeRelay:
		if b.transport == nil {
			return nil, ErrNoTransport
		}
	default:
		return nil, fmt.Errorf("unknown bridge mode %q", b.mode)
	}

	if b.registry == nil {
		b.registry = NewRegistry()
	}
	if b.page == nil {
		if b.pageURL != nil {
			b.page = URLAllowChecker{URL: *b.pageURL, Options: b.options, Logger: b.logger}
		} else {
			b.page = AllowAll
		}
	}

	b.filters = filter.NewEngine(b.options.FilterGlobal(), filter.WithLogger(b.logger))
	b.normalizer = &config.Normalizer{
		IDs:     b.registry.IDs(),
		Filters: b.filters,
		Title:   b.title,
		Logger:  b.logger,
	}
	b.recorder = observe.NewRecorder(b.registry.Cache(), b.sink, b.logger)
	return b, nil
}

// Registry returns the bridge's registry.
func (b *Bridge) Registry() *Registry {
	return b.registry
}

// Mode returns the bridge's mode.
func (b *Bridge) Mode() Mode {
	return b.mode
}

// Filters returns the filter engine built from the global options.
func (b *Bridge) Filters() *filter.Engine {
	return b.filters
}

// Normalize normalizes raw the way Enhancer does, allocating an id when raw
// has none.
func (b *Bridge) Normalize(raw *config.Config) (*config.Config, *config.Extracted) {
	return b.normalizer.Normalize(raw)
}

// LastObservation returns the most recent observation of instance id.
func (b *Bridge) LastObservation(id int) (observe.Observation, bool) {
	return b.registry.Cache().Get(id)
}

// Enhancer returns an enhancer instrumenting the store it creates. raw is
// normalized now, once, so the instance id is fixed before the store
// exists.
func (b *Bridge) Enhancer(raw *config.Config) Enhancer {
	cfg, x := b.normalizer.Normalize(raw)
	return func(next StoreCreator) StoreCreator {
		return func(reducer Reducer, initial ir.Value) (Store, error) {
			store, err := next(reducer, initial)
			if err != nil {
				berr := newError(ErrCodeStoreCreateFailed, cfg.InstanceID, err, "create store %q", cfg.Name)
				_ = b.ReportError(cfg.InstanceID, berr)
				return nil, berr
			}
			return b.attach(store, cfg, x), nil
		}
	}
}

// Instrument wraps an already-built store. On a disallowed page store is
// returned unchanged.
func (b *Bridge) Instrument(store Store, raw *config.Config) Store {
	cfg, x := b.normalizer.Normalize(raw)
	return b.attach(store, cfg, x)
}

func (b *Bridge) attach(store Store, cfg *config.Config, x *config.Extracted) Store {
	if !b.page.Allowed() {
		b.logger.Debug("page not allowed, store left unwrapped",
			"instance_id", cfg.InstanceID,
			"name", cfg.Name,
		)
		return store
	}

	inst := &instance{
		id:    cfg.InstanceID,
		name:  cfg.Name,
		conn:  observe.ConnectionManaged,
		cfg:   cfg,
		x:     x,
		store: store,
	}
	wrapped := &instrumented{Store: store, bridge: b, inst: inst}
	inst.wrap = wrapped
	b.registry.register(inst)

	b.logger.Info("store registered",
		"instance_id", inst.id,
		"name", inst.name,
		"mode", b.mode,
	)
	b.recorder.Init(inst.id, observe.ConnectionManaged)
	b.announce(inst)
	return wrapped
}

// observe runs after every successful dispatch or report.
func (b *Bridge) observe(inst *instance, action ir.Object, state ir.Value) {
	b.recorder.Save(action, state, inst.conn, inst.x, inst.cfg)

	next := b.registry.advance(inst.id)
	if b.mode != ModeRelay {
		return
	}
	if ls, ok := inst.store.(LiftedStore); ok {
		next = ls.LiftedState().NextActionID
	}
	b.relayAction(inst, action, state, next)
}

func (b *Bridge) observeBatch(inst *instance, actions []ir.Object, state ir.Value) {
	var next int
	for _, action := range actions {
		b.recorder.Save(action, state, inst.conn, inst.x, inst.cfg)
		next = b.registry.advance(inst.id)
	}
	if b.mode != ModeRelay {
		return
	}
	b.relayBatch(inst, actions, state, next)
}

// Listen registers fn for commands addressed to id. The returned func
// removes this registration only.
func (b *Bridge) Listen(id int, fn Listener) func() {
	return b.registry.addListener(id, fn)
}

// Unsubscribe drops every listener of id. The store stays wrapped and its
// dispatches are still recorded.
func (b *Bridge) Unsubscribe(id int) {
	b.registry.removeListeners(id)
	b.logger.Debug("instance unsubscribed", "instance_id", id)
}
