package input

// EventType is a raw render-surface event.
type EventType int

const (
	EventEnter EventType = iota + 1
	EventLeave
	EventKeyDown
	EventKeyUp
	EventButtonDown
	EventButtonUp
	EventMove
	EventDrag
	EventWheel
)

// UIEvent is what a render surface reports. X and Y are widget-local;
// WidgetW and WidgetH are the widget's current size. WheelDY < 0 scrolls up.
type UIEvent struct {
	Type             EventType
	Code             uint8
	X, Y             int
	WidgetW, WidgetH int
	WheelDY          int
}

// Translator turns UI events into commands. Events are only forwarded while
// the pointer is inside the surface, between Enter and Leave.
type Translator struct {
	Width, Height uint16
	hooked        bool
}

func NewTranslator(width, height uint16) *Translator {
	return &Translator{Width: width, Height: height}
}

func (t *Translator) Hooked() bool { return t.hooked }

// Translate returns the command for ev, if any.
func (t *Translator) Translate(ev UIEvent) (Command, bool) {
	switch ev.Type {
	case EventEnter:
		t.hooked = true
		return Command{}, false
	case EventLeave:
		t.hooked = false
		return Command{}, false
	}
	if !t.hooked {
		return Command{}, false
	}

	switch ev.Type {
	case EventKeyDown:
		return Command{Op: KeyDown, Code: ev.Code}, true
	case EventKeyUp:
		return Command{Op: KeyUp, Code: ev.Code}, true
	case EventButtonDown:
		return Command{Op: MouseButtonDown, Code: ev.Code}, true
	case EventButtonUp:
		return Command{Op: MouseButtonUp, Code: ev.Code}, true
	case EventMove, EventDrag:
		x, y := ScalePoint(ev.X, ev.Y, ev.WidgetW, ev.WidgetH, t.Width, t.Height)
		return Command{Op: Move, X: x, Y: y}, true
	case EventWheel:
		switch {
		case ev.WheelDY < 0:
			return Command{Op: WheelUp}, true
		case ev.WheelDY > 0:
			return Command{Op: WheelDown}, true
		}
	}
	return Command{}, false
}
