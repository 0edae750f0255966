package env

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/resource"
)

// handleLog traces handle lifetimes at debug level.
type handleLog struct {
	logger *zap.Logger
}

func (l handleLog) OnResourceEvent(ev resource.Event) {
	if ev.Kind == resource.KindDestructor {
		return
	}
	msg := "handle created"
	if ev.Type == resource.EventDropped {
		msg = "handle dropped"
	}
	l.logger.Debug(msg, zap.Uint32("handle", uint32(ev.Handle)), zap.Stringer("kind", ev.Kind))
}
