package annotation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

var (
	// ErrGestureActive is returned when an operation needs an idle controller.
	ErrGestureActive = errors.New("annotation: gesture in progress")
	// ErrTextGesture is returned by Begin while the text tool is selected.
	ErrTextGesture = errors.New("annotation: text tool places text, it does not drag")
)

// SinglePointPolicy decides what happens to a freehand gesture that never moved.
type SinglePointPolicy string

const (
	// SinglePointDot commits the one-point stroke; it renders as a dot.
	SinglePointDot SinglePointPolicy = "dot"
	// SinglePointDiscard drops the stroke without touching the history.
	SinglePointDiscard SinglePointPolicy = "discard"
)

// DefaultFontFamily is used for text when the settings leave it empty.
const DefaultFontFamily = "sans"

// Settings is the tool palette state applied to new gestures.
type Settings struct {
	Tool       Tool    `json:"tool"`
	Color      Color   `json:"color"`
	Width      float64 `json:"width"`
	FontSize   float64 `json:"font_size,omitempty"`
	FontFamily string  `json:"font_family,omitempty"`
}

// DefaultSettings returns a red 3px pen.
func DefaultSettings() Settings {
	return Settings{Tool: ToolPen, Color: Red, Width: 3}
}

// Validate validates the settings.
func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Tool, validation.Required, validation.By(func(any) error {
			if !s.Tool.Valid() {
				return fmt.Errorf("unknown tool %q", s.Tool)
			}
			return nil
		})),
		validation.Field(&s.Width, validation.Required, validation.Min(0.5), validation.Max(200.0)),
		validation.Field(&s.FontSize, validation.Min(0.0), validation.Max(512.0)),
	)
}

// textFontSize is the label size derived from the settings.
func (s Settings) textFontSize() float64 {
	if s.FontSize > 0 {
		return s.FontSize
	}
	return s.Width * 4
}

func (s Settings) textFontFamily() string {
	if s.FontFamily != "" {
		return s.FontFamily
	}
	return DefaultFontFamily
}

// Live is the in-progress primitive of an active gesture. At most one field
// is set.
type Live struct {
	Stroke *Stroke `json:"stroke,omitempty"`
	Shape  *Shape  `json:"shape,omitempty"`
}

func (l *Live) clone() *Live {
	if l == nil || (l.Stroke == nil && l.Shape == nil) {
		return nil
	}
	out := &Live{}
	if l.Stroke != nil {
		st := l.Stroke.clone()
		out.Stroke = &st
	}
	if l.Shape != nil {
		sh := *l.Shape
		out.Shape = &sh
	}
	return out
}

// Surface receives render requests from the controller. Redraw repaints the
// whole layer; Segment paints one freehand segment on top of what is there.
type Surface interface {
	Redraw(state State, live *Live)
	Segment(tool Tool, from, to Point)
}

// Phase is the gesture state.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
)

// Change describes a committed mutation for listeners.
type Change struct {
	Op     string `json:"op"`
	Counts Counts `json:"counts"`
}

// Change operations.
const (
	OpStroke = "stroke"
	OpShape  = "shape"
	OpText   = "text"
	OpClear  = "clear"
	OpUndo   = "undo"
)

// Committed reports the outcome of Commit.
type Committed struct {
	Stroke    *Stroke `json:"stroke,omitempty"`
	Shape     *Shape  `json:"shape,omitempty"`
	Discarded bool    `json:"discarded,omitempty"`
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithSurface attaches a render surface.
func WithSurface(s Surface) ControllerOption {
	return func(c *Controller) { c.surface = s }
}

// WithSinglePointPolicy sets the single-point stroke policy.
func WithSinglePointPolicy(p SinglePointPolicy) ControllerOption {
	return func(c *Controller) { c.policy = p }
}

// WithHistoryCapacity sets the undo history capacity.
func WithHistoryCapacity(n int) ControllerOption {
	return func(c *Controller) { c.store = NewStore(n) }
}

// WithChangeListener registers fn to be called after every committed mutation.
func WithChangeListener(fn func(Change)) ControllerOption {
	return func(c *Controller) { c.onChange = fn }
}

// WithIDGenerator overrides the primitive id generator.
func WithIDGenerator(fn func() string) ControllerOption {
	return func(c *Controller) { c.newID = fn }
}

// Controller turns pointer gestures into Store mutations. It is an explicit
// idle/active state machine; all methods are safe for concurrent use and are
// applied in call order.
type Controller struct {
	mu       sync.Mutex
	store    *Store
	settings Settings
	policy   SinglePointPolicy
	surface  Surface
	onChange func(Change)
	newID    func() string

	phase Phase
	live  Live
}

// NewController creates an idle controller with default settings.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		store:    NewStore(DefaultHistoryCapacity),
		settings: DefaultSettings(),
		policy:   SinglePointDot,
		newID:    uuid.NewString,
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the current tool settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetSettings replaces the tool settings. It fails while a gesture is active.
func (c *Controller) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("annotation: settings: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseActive {
		return ErrGestureActive
	}
	c.settings = s
	return nil
}

// Phase returns the gesture state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// State returns a copy of the committed annotation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.State()
}

// Live returns a copy of the in-progress primitive, or nil when idle.
func (c *Controller) Live() *Live {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live.clone()
}

// HistoryLen returns the number of undo snapshots.
func (c *Controller) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.HistoryLen()
}

// Begin starts a gesture at p with the current tool.
func (c *Controller) Begin(p Pos) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseActive {
		return ErrGestureActive
	}
	s := c.settings
	switch s.Tool.Class() {
	case ClassFreehand:
		color, width := s.Color, s.Width
		switch s.Tool {
		case ToolHighlighter:
			width *= 2
		case ToolEraser:
			color = White
		}
		c.live = Live{Stroke: &Stroke{
			ID:     c.newID(),
			Tool:   s.Tool,
			Color:  color,
			Width:  width,
			Points: []Point{{X: p.X, Y: p.Y, Color: color, Width: width}},
		}}
	case ClassShape:
		kind, _ := s.Tool.ShapeKind()
		c.live = Live{Shape: &Shape{
			ID:    c.newID(),
			Kind:  kind,
			Start: p,
			End:   p,
			Color: s.Color,
			Width: s.Width,
		}}
		c.redraw()
	case ClassText:
		return ErrTextGesture
	default:
		return fmt.Errorf("annotation: unknown tool %q", s.Tool)
	}
	c.phase = PhaseActive
	return nil
}

// Move extends a freehand stroke or moves the end point of a shape. It is a
// no-op while idle.
func (c *Controller) Move(p Pos) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return
	}
	switch {
	case c.live.Stroke != nil:
		st := c.live.Stroke
		prev := st.Points[len(st.Points)-1]
		next := Point{X: p.X, Y: p.Y, Color: st.Color, Width: st.Width}
		st.Points = append(st.Points, next)
		if c.surface != nil {
			c.surface.Segment(st.Tool, prev, next)
		}
	case c.live.Shape != nil:
		c.live.Shape.End = p
		c.redraw()
	}
}

// Commit freezes the active gesture into the store. It is a no-op while idle.
func (c *Controller) Commit() (Committed, error) {
	c.mu.Lock()
	var (
		out    Committed
		change *Change
	)
	switch {
	case c.phase != PhaseActive:
	case c.live.Stroke != nil:
		st := c.live.Stroke.clone()
		if len(st.Points) == 1 && c.policy == SinglePointDiscard {
			out.Discarded = true
			break
		}
		if err := c.store.CommitStroke(st); err != nil {
			c.reset()
			c.mu.Unlock()
			return out, err
		}
		out.Stroke = &st
		change = &Change{Op: OpStroke}
	case c.live.Shape != nil:
		sh := *c.live.Shape
		c.store.CommitShape(sh)
		out.Shape = &sh
		change = &Change{Op: OpShape}
	}
	wasActive := c.phase == PhaseActive
	c.reset()
	if wasActive {
		c.redraw()
	}
	if change != nil {
		change.Counts = c.store.state.Counts()
	}
	c.mu.Unlock()

	c.notify(change)
	return out, nil
}

// Cancel abandons the active gesture without mutating the store.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseActive {
		return
	}
	c.reset()
	c.redraw()
}

// PlaceText commits a text label at p using the current color and font. Blank
// text performs no mutation and reports false.
func (c *Controller) PlaceText(p Pos, text string) (bool, error) {
	c.mu.Lock()
	if c.phase == PhaseActive {
		c.mu.Unlock()
		return false, ErrGestureActive
	}
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return false, nil
	}
	s := c.settings
	c.store.PlaceText(TextAnnotation{
		ID:         c.newID(),
		Pos:        p,
		Text:       text,
		Color:      s.Color,
		FontSize:   s.textFontSize(),
		FontFamily: s.textFontFamily(),
	})
	c.redraw()
	change := &Change{Op: OpText, Counts: c.store.state.Counts()}
	c.mu.Unlock()

	c.notify(change)
	return true, nil
}

// Undo restores the previous state. It reports false when there is nothing to
// undo. An active gesture stays live on top of the restored state.
func (c *Controller) Undo() bool {
	c.mu.Lock()
	if !c.store.Undo() {
		c.mu.Unlock()
		return false
	}
	c.redraw()
	change := &Change{Op: OpUndo, Counts: c.store.state.Counts()}
	c.mu.Unlock()

	c.notify(change)
	return true
}

// Clear empties the layer. The previous state stays available to Undo.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.store.Clear()
	c.redraw()
	change := &Change{Op: OpClear}
	c.mu.Unlock()

	c.notify(change)
}

func (c *Controller) reset() {
	c.live = Live{}
	c.phase = PhaseIdle
}

// redraw must be called with mu held.
func (c *Controller) redraw() {
	if c.surface == nil {
		return
	}
	c.surface.Redraw(c.store.State(), c.live.clone())
}

func (c *Controller) notify(change *Change) {
	if change == nil || c.onChange == nil {
		return
	}
	c.onChange(*change)
}
