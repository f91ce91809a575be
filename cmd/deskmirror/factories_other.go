//go:build !linux || !cgo

package main

import (
	"errors"

	"deskmirror/internal/capture"
	"deskmirror/internal/session"
)

func nativeCapture(string, bool) (capture.Factory, error) {
	return nil, errors.New("no native capture backend in this build; use --capture synthetic")
}

// A nil factory makes the server fall back to logging input.
func injectorFactory(string) session.InjectorFactory { return nil }
