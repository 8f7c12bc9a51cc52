package oblique

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/paulmach/orb"

	"github.com/beetlebugorg/oblique/internal/logger"
)

// Viewport is the map view showing the current image. Its coordinates are
// pixel coordinates of the current image.
type Viewport interface {
	Center() r2.Point
	SetCenter(center r2.Point)
	Zoom() float64
	SetZoom(zoom float64)

	// SetView switches the viewport to another camera's view.
	SetView(view *View)

	// OnRender and OnMoveEnd register fn and return a function removing it.
	OnRender(fn func()) func()
	OnMoveEnd(fn func()) func()
}

// ProviderOptions configures a Provider.
type ProviderOptions struct {
	// SwitchThreshold is the interior ratio of the image, per side, inside
	// which the viewport center never causes a switch. Clamped to [0, 0.5].
	SwitchThreshold float64

	// SwitchEnabled turns automatic switching on.
	SwitchEnabled bool

	// SwitchOnRender evaluates switching on every rendered frame instead of
	// only when the viewport stops moving.
	SwitchOnRender bool

	// PullDistance is how far, in pixels, the viewport center is moved
	// towards the image center before looking for a better image.
	PullDistance float64

	// StateBuffer is the world distance around the candidate coordinate whose
	// data must be Ready before switching.
	StateBuffer float64

	// MaxViews bounds the number of cached camera views.
	MaxViews int

	Transform TransformOptions
	Logger    logger.ILogger
	Metrics   *Metrics
}

// DefaultProviderOptions returns a 0.2 switch threshold evaluated on move end.
func DefaultProviderOptions() ProviderOptions {
	return ProviderOptions{
		SwitchThreshold: 0.2,
		SwitchEnabled:   true,
		PullDistance:    50,
		StateBuffer:     200,
		MaxViews:        5,
		Transform:       DefaultTransformOptions(),
		Logger:          &logger.NullLogger{},
	}
}

// Provider shows one image of a Collection at a time and switches to a
// better image when the viewport approaches the edge of the current one.
//
// Every SetImage and SetView call takes a new generation. A call whose
// generation is no longer the latest when it resumes from a blocking step
// returns without effect, so image switches commit in the order they were
// requested. Starting a call also cancels the context of the previous one.
type Provider struct {
	opts     ProviderOptions
	log      logger.ILogger
	viewport Viewport
	layers   LayerFactory
	views    *ViewCache

	mu           sync.Mutex
	collection   *Collection
	active       bool
	loading      bool
	ticking      bool
	generation   uint64
	cancelLoad   context.CancelFunc
	currentImage *Image
	currentView  *View
	unsubscribe  func()
	listeners    []func(*Image)
}

// NewProvider creates an inactive provider.
func NewProvider(viewport Viewport, layers LayerFactory, opts ProviderOptions) *Provider {
	opts.SwitchThreshold = clampThreshold(opts.SwitchThreshold)
	return &Provider{
		opts:     opts,
		log:      logger.OrNull(opts.Logger),
		viewport: viewport,
		layers:   layers,
		views:    NewViewCache(opts.MaxViews),
	}
}

func clampThreshold(t float64) float64 {
	return math.Max(0, math.Min(0.5, t))
}

// SetCollection replaces the collection. The current image and view are
// dropped and any switch in flight is cancelled.
func (p *Provider) SetCollection(c *Collection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidate()
	p.collection = c
	p.currentImage = nil
	p.currentView = nil
	p.views.Unpin()
}

// Collection returns the current collection.
func (p *Provider) Collection() *Collection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.collection
}

// Activate starts reacting to viewport events.
func (p *Provider) Activate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.collection == nil {
		return ErrNoCollection
	}
	if p.active {
		return nil
	}
	p.active = true
	p.subscribe()
	return nil
}

// Deactivate stops reacting to viewport events and cancels the switch in
// flight.
func (p *Provider) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active = false
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.invalidate()
}

// Active reports whether the provider reacts to viewport events.
func (p *Provider) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// subscribe registers the tick hook. Must be called with p.mu locked.
func (p *Provider) subscribe() {
	if p.viewport == nil {
		return
	}
	hook := func() {
		go func() {
			if _, err := p.Tick(context.Background()); err != nil {
				p.log.Errorf("provider: %v", err)
			}
		}()
	}
	if p.opts.SwitchOnRender {
		p.unsubscribe = p.viewport.OnRender(hook)
	} else {
		p.unsubscribe = p.viewport.OnMoveEnd(hook)
	}
}

// invalidate supersedes the switch in flight. Must be called with p.mu
// locked.
func (p *Provider) invalidate() {
	p.generation++
	p.loading = false
	if p.cancelLoad != nil {
		p.cancelLoad()
		p.cancelLoad = nil
	}
}

// SetSwitchThreshold sets the interior ratio, clamped to [0, 0.5].
func (p *Provider) SetSwitchThreshold(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.SwitchThreshold = clampThreshold(t)
}

// SwitchThreshold returns the interior ratio.
func (p *Provider) SwitchThreshold() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.SwitchThreshold
}

// SetSwitchEnabled turns automatic switching on or off.
func (p *Provider) SetSwitchEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.SwitchEnabled = enabled
}

// SetSwitchOnRender selects the viewport event driving Tick.
func (p *Provider) SetSwitchOnRender(onRender bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opts.SwitchOnRender == onRender {
		return
	}
	p.opts.SwitchOnRender = onRender
	if p.active {
		if p.unsubscribe != nil {
			p.unsubscribe()
		}
		p.subscribe()
	}
}

// OnImageChanged registers fn to be called after every committed switch.
func (p *Provider) OnImageChanged(fn func(*Image)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// CurrentImage returns the image on screen, or nil.
func (p *Provider) CurrentImage() *Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentImage
}

// CurrentView returns the view on screen, or nil.
func (p *Provider) CurrentView() *View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentView
}

// Loading reports whether a switch is in flight.
func (p *Provider) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// ViewpointWorld returns the world coordinate under the viewport center.
func (p *Provider) ViewpointWorld(ctx context.Context) (WorldCoordinate, error) {
	img := p.CurrentImage()
	if img == nil {
		return WorldCoordinate{}, &ErrNoImage{}
	}
	return img.TransformFromImage(ctx, p.viewport.Center(), p.opts.Transform)
}

// Tick evaluates whether the viewport has drifted far enough towards the
// edge of the current image to switch to another one. It reports whether a
// switch was committed. A Tick arriving while another one or a switch is
// still running does nothing.
func (p *Provider) Tick(ctx context.Context) (bool, error) {
	p.mu.Lock()
	img := p.currentImage
	col := p.collection
	skip := !p.active || p.loading || p.ticking || !p.opts.SwitchEnabled || img == nil || img.IsPlaceholder() || col == nil
	threshold := p.opts.SwitchThreshold
	if !skip {
		p.ticking = true
	}
	p.mu.Unlock()
	if skip {
		return false, nil
	}
	defer func() {
		p.mu.Lock()
		p.ticking = false
		p.mu.Unlock()
	}()

	center := p.viewport.Center()
	w, h := float64(img.Meta.Size[0]), float64(img.Meta.Size[1])
	rx, ry := center.X/w, center.Y/h
	if rx >= threshold && rx <= 1-threshold && ry >= threshold && ry <= 1-threshold {
		return false, nil
	}

	pulled := center
	if toMid := img.Meta.Center().Sub(center); toMid.Norm() > 0 {
		pulled = center.Add(toMid.Normalize().Mul(math.Min(p.opts.PullDistance, toMid.Norm())))
	}

	candidate, err := img.TransformFromImage(ctx, pulled, p.opts.Transform)
	if err != nil {
		return false, err
	}

	extent := candidate.Point.Bound().Pad(p.opts.StateBuffer)
	switch col.DataStateForExtent(extent) {
	case DataStateReady:
		next, err := col.ImageForCoordinate(candidate.Point, img.ViewDirection)
		if err != nil || next == nil || next.Name == img.Name {
			return false, err
		}
		world, err := img.TransformFromImage(ctx, center, p.opts.Transform)
		if err != nil {
			return false, err
		}
		return p.SetImage(ctx, next, &world.Point, nil)

	case DataStatePending:
		go func() {
			if err := col.LoadDataForExtent(context.Background(), extent); err != nil {
				p.log.Errorf("provider: load extent: %v", err)
			}
		}()
	}
	return false, nil
}

// SetImage shows img centered on the world coordinate center (the image
// center when nil) at the given zoom (the current zoom when nil).
//
// It returns false without error when a later SetImage or SetView
// superseded the call.
func (p *Provider) SetImage(ctx context.Context, img *Image, center *orb.Point, zoom *float64) (bool, error) {
	gen, lctx, cancel := p.begin(ctx)
	defer cancel()
	defer p.finish(gen)

	return p.changeImage(lctx, gen, img, center, zoom)
}

// SetView shows the image of direction dir closest to the world coordinate
// coord, loading the data there first.
//
// It fails with *ErrNoImage when the collection holds no image at all. A
// superseded call returns nil without effect.
func (p *Provider) SetView(ctx context.Context, coord orb.Point, dir ViewDirection, zoom *float64) error {
	col := p.Collection()
	if col == nil {
		return ErrNoCollection
	}

	gen, lctx, cancel := p.begin(ctx)
	defer cancel()
	defer p.finish(gen)

	if col.DataStateForCoordinate(coord) != DataStateReady {
		if err := col.LoadDataForCoordinate(lctx, coord); err != nil {
			if !p.isCurrent(gen) {
				return nil
			}
			return err
		}
		if !p.isCurrent(gen) {
			p.opts.Metrics.switchSuperseded()
			return nil
		}
	}

	img, err := col.ImageForCoordinate(coord, dir)
	if err != nil {
		return err
	}
	if img == nil {
		return &ErrNoImage{Direction: dir}
	}

	_, err = p.changeImage(lctx, gen, img, &coord, zoom)
	return err
}

// LoadAdjacentImage switches to the neighbor of the current image in the
// given heading (see Collection.LoadAdjacentImage). It reports whether a
// neighbor was found and shown.
func (p *Provider) LoadAdjacentImage(ctx context.Context, heading, deviation float64) (bool, error) {
	p.mu.Lock()
	img, col := p.currentImage, p.collection
	p.mu.Unlock()
	if col == nil {
		return false, ErrNoCollection
	}
	if img == nil || img.IsPlaceholder() {
		return false, nil
	}

	next, err := col.LoadAdjacentImage(ctx, img, heading, deviation)
	if err != nil || next == nil {
		return false, err
	}
	return p.SetImage(ctx, next, nil, nil)
}

// begin takes a new generation and cancels the previous call.
func (p *Provider) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.invalidate()
	lctx, cancel := context.WithCancel(ctx)
	p.cancelLoad = cancel
	p.loading = true
	return p.generation, lctx, cancel
}

func (p *Provider) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation == gen {
		p.loading = false
		p.cancelLoad = nil
	}
}

func (p *Provider) isCurrent(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation == gen
}

// superseded records a discarded switch and reports whether gen is stale.
func (p *Provider) superseded(gen uint64) bool {
	if p.isCurrent(gen) {
		return false
	}
	p.opts.Metrics.switchSuperseded()
	return true
}

func (p *Provider) changeImage(ctx context.Context, gen uint64, img *Image, center *orb.Point, zoom *float64) (bool, error) {
	img.AverageHeight(ctx)
	if p.superseded(gen) {
		return false, nil
	}

	pixel := img.Meta.Center()
	if center != nil {
		ic, err := img.TransformToImage(ctx, *center)
		if p.superseded(gen) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		pixel = ic.Point
	}

	view, err := p.views.Get(img.Meta, func() (*View, error) {
		return newView(img.Meta, p.layers)
	})
	if p.superseded(gen) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		p.opts.Metrics.switchSuperseded()
		return false, nil
	}

	z := 0.0
	if p.viewport != nil {
		z = p.viewport.Zoom()
	}
	if zoom != nil {
		z = *zoom
	}
	view.set(pixel, z)
	if view.Layer != nil {
		view.Layer.SetImageName(img.Name)
	}
	p.views.Pin(img.Meta)

	if p.viewport != nil {
		if p.currentView != view {
			p.viewport.SetView(view)
		}
		p.viewport.SetCenter(pixel)
		if zoom != nil {
			p.viewport.SetZoom(*zoom)
		}
	}

	p.currentImage = img
	p.currentView = view
	listeners := append([]func(*Image){}, p.listeners...)
	p.mu.Unlock()

	p.log.Debugf("provider: switched to %s", img.Name)
	p.opts.Metrics.switchCommitted()
	for _, fn := range listeners {
		fn(img)
	}
	return true, nil
}

// Close deactivates the provider and disposes all cached views.
func (p *Provider) Close() {
	p.Deactivate()
	p.views.Clear()
}
