package logger

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// PrettyHandler is a slog.Handler producing single line, colored records
// for terminals. Group names are flattened into dotted key prefixes and
// attributes added with WithAttrs are preformatted once. Clones share the
// write lock so concurrent loggers do not interleave output.
type PrettyHandler struct {
	opts         slog.HandlerOptions
	mu           *sync.Mutex
	w            io.Writer
	prefix       string
	preformatted []byte
}

// NewPrettyHandler returns a PrettyHandler writing to w. Nil opts means
// default options.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{mu: &sync.Mutex{}, w: w}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *PrettyHandler) clone() *PrettyHandler {
	return &PrettyHandler{
		opts:         h.opts,
		mu:           h.mu,
		w:            h.w,
		prefix:       h.prefix,
		preformatted: slices.Clip(h.preformatted),
	}
}

// Enabled reports whether records at the given level are handled.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

// Handle formats one record as [time] LEVEL message key=value ... and
// writes it under the shared lock.
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)

	if !r.Time.IsZero() {
		buf = append(buf, ansiGray...)
		buf = append(buf, '[')
		buf = r.Time.AppendFormat(buf, time.TimeOnly)
		buf = append(buf, ']')
		buf = append(buf, ansiReset...)
		buf = append(buf, ' ')
	}

	lvl := r.Level.String()
	buf = append(buf, colorFor(r.Level)...)
	buf = append(buf, ansiBold...)
	buf = append(buf, lvl...)
	buf = append(buf, ansiReset...)
	for i := len(lvl); i < 5; i++ {
		buf = append(buf, ' ')
	}
	buf = append(buf, ' ')

	buf = append(buf, r.Message...)

	if len(h.preformatted) > 0 || r.NumAttrs() > 0 {
		buf = append(buf, ansiCyan...)
		buf = append(buf, h.preformatted...)
		r.Attrs(func(a slog.Attr) bool {
			buf = h.appendAttr(buf, a, h.prefix)
			return true
		})
		buf = append(buf, ansiReset...)
	}

	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs returns a handler that renders attrs on every record. The
// attrs are formatted once, under the prefix in effect when they were
// added.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	for _, a := range attrs {
		c.preformatted = c.appendAttr(c.preformatted, a, c.prefix)
	}
	return c
}

// WithGroup returns a handler that prefixes subsequent keys with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix = h.prefix + name + "."
	return c
}

// appendAttr writes one attribute as " prefixkey=value". Groups are
// flattened recursively and empty attrs are dropped.
func (h *PrettyHandler) appendAttr(buf []byte, a slog.Attr, prefix string) []byte {
	if a.Equal(slog.Attr{}) {
		return buf
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, g := range v.Group() {
			buf = h.appendAttr(buf, g, p)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if needsQuoting(s) {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	case slog.KindTime:
		buf = v.Time().AppendFormat(buf, time.RFC3339)
	default:
		buf = append(buf, v.String()...)
	}
	return buf
}

func colorFor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\n\"")
}
