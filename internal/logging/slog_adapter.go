package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// SlogHandler implements slog.Handler on top of a zerolog.Logger.
//
// Groups are flattened into dotted keys ("request.id") because zerolog has no
// notion of nested attribute groups at the handler level.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*SlogHandler)(nil)

// NewSlogHandler wraps logger.
func NewSlogHandler(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// NewSlogLogger returns an *slog.Logger backed by logger.
func NewSlogLogger(logger zerolog.Logger) *slog.Logger {
	return slog.New(NewSlogHandler(logger))
}

func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= slogToZerologLevel(level)
}

func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	var event *zerolog.Event
	switch lvl := slogToZerologLevel(record.Level); lvl {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		event = h.logger.Debug()
	case zerolog.WarnLevel:
		event = h.logger.Warn()
	case zerolog.ErrorLevel:
		event = h.logger.Error()
	default:
		event = h.logger.Info()
	}
	if event == nil {
		return nil
	}

	for _, attr := range h.attrs {
		event = addAttr(event, attr, nil)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = addAttr(event, attr, h.groups)
		return true
	})

	event.Msg(record.Message)
	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attributes added after a group belong to it; bake the prefix in now.
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		if len(h.groups) > 0 {
			a.Key = strings.Join(h.groups, ".") + "." + a.Key
		}
		prefixed = append(prefixed, a)
	}
	return &SlogHandler{logger: h.logger, attrs: prefixed, groups: h.groups}
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, len(h.groups)+1)
	copy(groups, h.groups)
	groups[len(h.groups)] = name
	return &SlogHandler{logger: h.logger, attrs: h.attrs, groups: groups}
}

// addAttr writes attr to event under the dotted groups prefix. Handler-level
// attrs already carry their prefix and are passed with no groups.
func addAttr(event *zerolog.Event, attr slog.Attr, groups []string) *zerolog.Event {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return event
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	switch attr.Value.Kind() {
	case slog.KindString:
		return event.Str(key, attr.Value.String())
	case slog.KindInt64:
		return event.Int64(key, attr.Value.Int64())
	case slog.KindUint64:
		return event.Uint64(key, attr.Value.Uint64())
	case slog.KindFloat64:
		return event.Float64(key, attr.Value.Float64())
	case slog.KindBool:
		return event.Bool(key, attr.Value.Bool())
	case slog.KindDuration:
		return event.Dur(key, attr.Value.Duration())
	case slog.KindTime:
		return event.Time(key, attr.Value.Time())
	case slog.KindGroup:
		nested := make([]string, len(groups)+1)
		copy(nested, groups)
		nested[len(groups)] = attr.Key
		for _, ga := range attr.Value.Group() {
			event = addAttr(event, ga, nested)
		}
		return event
	case slog.KindAny, slog.KindLogValuer:
		if err, ok := attr.Value.Any().(error); ok {
			return event.AnErr(key, err)
		}
		return event.Interface(key, attr.Value.Any())
	default:
		return event.Interface(key, attr.Value.Any())
	}
}

func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelDebug:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
