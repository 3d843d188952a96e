//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package epollshim

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// NewLogger builds a logiface.Logger backed by stumpy (a zero-dependency
// JSON writer from the same pack as the teacher's own logiface dependency),
// generified to logiface.Event the way sql/export.Exporter.Logger is, so it
// can be handed directly to WithLogger. Passing a nil writer defaults to
// os.Stderr, matching stumpy's own WithStumpy default.
func NewLogger(level logiface.Level, writer io.Writer) *logiface.Logger[logiface.Event] {
	if writer == nil {
		writer = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(writer)),
		stumpy.L.WithLevel(level),
	).Logger()
}
