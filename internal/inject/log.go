package inject

import (
	"log"

	"deskmirror/internal/types"
)

// Logger is an Injector that only logs. It is used where no native
// injection backend is built in, and for sources run with --log-input.
type Logger struct {
	Prefix string
}

var _ types.Injector = (*Logger)(nil)

func (l *Logger) KeyDown(code uint8) { l.logf("key down %d (keysym %#x)", code, Keysym(code)) }
func (l *Logger) KeyUp(code uint8)   { l.logf("key up %d", code) }

func (l *Logger) MouseButtonDown(b uint8) { l.logf("button down %d", b) }
func (l *Logger) MouseButtonUp(b uint8)   { l.logf("button up %d", b) }
func (l *Logger) Scroll(dy int)           { l.logf("scroll %d", dy) }
func (l *Logger) MoveTo(x, y int)         { l.logf("move %d,%d", x, y) }
func (l *Logger) Close()                  {}

func (l *Logger) logf(format string, args ...any) {
	p := l.Prefix
	if p == "" {
		p = "inject"
	}
	log.Printf(p+": "+format, args...)
}
