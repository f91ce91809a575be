package viewer

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deskmirror/internal/input"
)

// eventJSON is the body of POST /input.
type eventJSON struct {
	Type    string `json:"type"`
	Code    uint8  `json:"code"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	WheelDY int    `json:"wheel_dy"`
}

var eventTypes = map[string]input.EventType{
	"enter":      input.EventEnter,
	"leave":      input.EventLeave,
	"keydown":    input.EventKeyDown,
	"keyup":      input.EventKeyUp,
	"buttondown": input.EventButtonDown,
	"buttonup":   input.EventButtonUp,
	"move":       input.EventMove,
	"drag":       input.EventDrag,
	"wheel":      input.EventWheel,
}

// Handler serves the reconstructed display, an input endpoint for a
// browser-side surface, and metrics.
func (v *Viewer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		width, height := v.Size()
		fmt.Fprintf(w, `{"status":"ok","width":%d,"height":%d,"seq":%d}`, width, height, v.display.Seq())
	})
	r.Get("/frame.png", v.handleFrame)
	r.Post("/input", v.handleInput)
	r.Handle("/metrics", promhttp.HandlerFor(v.cfg.Gatherer, promhttp.HandlerOpts{}))
	return r
}

func (v *Viewer) handleFrame(w http.ResponseWriter, r *http.Request) {
	if v.display.Seq() == 0 {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, v.display.Image()); err != nil {
		log.Printf("viewer: frame: %v", err)
	}
}

func (v *Viewer) handleInput(w http.ResponseWriter, r *http.Request) {
	var events []eventJSON
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&events); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, e := range events {
		t, ok := eventTypes[e.Type]
		if !ok {
			http.Error(w, fmt.Sprintf("unknown event type %q", e.Type), http.StatusBadRequest)
			return
		}
		v.HandleEvent(input.UIEvent{
			Type: t, Code: e.Code, X: e.X, Y: e.Y,
			WidgetW: e.Width, WidgetH: e.Height, WheelDY: e.WheelDY,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
