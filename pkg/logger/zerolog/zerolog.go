// Package zerolog adapts rs/zerolog to the logger.Logger interface.
package zerolog

import (
	"io"

	"github.com/rs/zerolog"
)

type Handler struct {
	logger zerolog.Logger
}

// New builds a handler writing structured JSON lines to w.
func New(w io.Writer) *Handler {
	return &Handler{logger: zerolog.New(w).With().Timestamp().Logger()}
}

// FromLogger wraps an existing zerolog.Logger.
func FromLogger(l zerolog.Logger) *Handler {
	return &Handler{logger: l}
}

func (h *Handler) Error(msg string, args ...any) {
	h.emit(h.logger.Error(), msg, args)
}

func (h *Handler) Warn(msg string, args ...any) {
	h.emit(h.logger.Warn(), msg, args)
}

func (h *Handler) Info(msg string, args ...any) {
	h.emit(h.logger.Info(), msg, args)
}

func (h *Handler) Debug(msg string, args ...any) {
	h.emit(h.logger.Debug(), msg, args)
}

// emit folds slog-style alternating key/value args into zerolog fields.
// A trailing key with no value is logged under "arg".
func (h *Handler) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			ev = ev.Interface("arg", args[i])
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	if len(args)%2 == 1 {
		ev = ev.Interface("arg", args[len(args)-1])
	}
	ev.Msg(msg)
}
