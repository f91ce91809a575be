//go:build linux && cgo

package main

import (
	"deskmirror/internal/capture"
	"deskmirror/internal/inject"
	"deskmirror/internal/session"
	"deskmirror/internal/types"
)

func nativeCapture(display string, cursor bool) (capture.Factory, error) {
	return capture.XShmFactory(display, cursor), nil
}

func injectorFactory(display string) session.InjectorFactory {
	return func() (types.Injector, error) {
		return inject.NewXTest(display)
	}
}
