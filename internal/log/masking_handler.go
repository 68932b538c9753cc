package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// maskedKeys contains attribute keys whose values are always masked.
// The set covers the credential fields this client actually handles
// plus the headers and session identifiers a future transport might
// log.
var maskedKeys = map[string]bool{
	// Stored login
	"password": true,
	"passwd":   true,

	// HTTP request/response headers
	"authorization": true,
	"cookie":        true,
	"set-cookie":    true,

	// Session identifiers
	"session":    true,
	"session_id": true,
	"sid":        true,

	// Generic secret material
	"secret":      true,
	"token":       true,
	"credential":  true,
	"credentials": true,
}

// maskedValuePatterns match values that look like secrets regardless of
// the attribute key they were logged under.
var maskedValuePatterns = []*regexp.Regexp{
	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// Bearer tokens
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// Basic auth
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// URL-encoded bodies carrying a password field, e.g.
	// "username=ann&password=hunter2". The remote client logs request
	// metadata, never bodies, but a masked fallback costs nothing.
	regexp.MustCompile(`(?i)(^|&)password=[^&]*`),
}

// Mask is the string substituted for masked values.
const Mask = "***MASKED***"

// MaskingHandler wraps an slog.Handler and masks credential-bearing
// attribute values before delegating. It implements slog.Handler, so it
// composes with any sink and stays transparent to callers using the
// standard slog API.
type MaskingHandler struct {
	// handler receives the masked records.
	handler slog.Handler
}

// NewMaskingHandler creates a MaskingHandler wrapping handler. A nil
// handler falls back to slog.Default().Handler().
func NewMaskingHandler(handler slog.Handler) *MaskingHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &MaskingHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and passes it on.
func (h *MaskingHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.maskAttr(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

// WithAttrs returns a handler with the given (masked) attributes added.
func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		maskedAttrs[i] = h.maskAttr(a)
	}
	return &MaskingHandler{handler: h.handler.WithAttrs(maskedAttrs)}
}

// WithGroup returns a handler with the given group name.
func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{handler: h.handler.WithGroup(name)}
}

// maskAttr masks a single attribute, recursing into groups.
func (h *MaskingHandler) maskAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		maskedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			maskedAttrs[i] = h.maskAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(maskedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if maskedKeys[keyLower] || containsMaskedKeyword(keyLower) {
		return slog.String(a.Key, Mask)
	}

	if a.Value.Kind() == slog.KindString && looksLikeSecret(a.Value.String()) {
		return slog.String(a.Key, Mask)
	}

	return a
}

// containsMaskedKeyword checks for credential keywords embedded in
// longer keys (e.g. "old_password", "auth_cookie"). The bare keyword
// "key" is deliberately absent: it matches too much ("task_key",
// "keyboard") for too little gain.
func containsMaskedKeyword(key string) bool {
	for _, keyword := range []string{"password", "passwd", "secret", "token", "credential"} {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

// looksLikeSecret checks whether a value matches a known secret shape.
func looksLikeSecret(value string) bool {
	for _, pattern := range maskedValuePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// NewLogger creates a *slog.Logger writing text records to w with
// credential masking. verbose selects Debug level, otherwise Warn.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	textHandler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewMaskingHandler(textHandler))
}

// NewJSONLogger is NewLogger with a JSON sink, for structured log
// aggregation.
func NewJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(NewMaskingHandler(jsonHandler))
}
