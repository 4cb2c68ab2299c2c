package vm

import (
	"github.com/tliron/commonlog"
)

// Logger is the minimal logging surface the vm package itself needs:
// a handful of leveled, lazily-formatted calls. It is satisfied by
// NopLogger (the default) and by *commonlogAdapter (backed by
// github.com/tliron/commonlog), and a host may supply any other
// implementation.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards everything; it is the default for a State created
// with NewState so that embedding a State never requires configuring
// logging first.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// commonlogAdapter wraps a github.com/tliron/commonlog logger so a host
// that already uses commonlog elsewhere (as lsp/glsp-based tooling
// typically does) can share its logging configuration with CubeScript.
type commonlogAdapter struct {
	log commonlog.Logger
}

// NewCommonLogger fetches a commonlog.Logger by name via
// commonlog.GetLogger and adapts it to Logger.
func NewCommonLogger(name string) Logger {
	return &commonlogAdapter{log: commonlog.GetLogger(name)}
}

func (a *commonlogAdapter) Debugf(format string, args ...any) { a.log.Debugf(format, args...) }
func (a *commonlogAdapter) Infof(format string, args ...any)  { a.log.Infof(format, args...) }
func (a *commonlogAdapter) Warnf(format string, args ...any)  { a.log.Warningf(format, args...) }
func (a *commonlogAdapter) Errorf(format string, args ...any) { a.log.Errorf(format, args...) }
