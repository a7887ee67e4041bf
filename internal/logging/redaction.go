package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

const redactedMark = "[REDACTED]"

// Redactor holds secret values that must never reach a log sink
type Redactor struct {
	mu       sync.RWMutex
	values   map[string]struct{}
	replacer *strings.Replacer
}

// NewRedactor creates an empty redactor
func NewRedactor() *Redactor {
	return &Redactor{values: map[string]struct{}{}, replacer: strings.NewReplacer()}
}

// Add registers secrets to scrub. Blank values are ignored.
func (r *Redactor) Add(secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range secrets {
		if s = strings.TrimSpace(s); s != "" {
			r.values[s] = struct{}{}
		}
	}
	pairs := make([]string, 0, 2*len(r.values))
	for v := range r.values {
		pairs = append(pairs, v, redactedMark)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact replaces every registered secret in s
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.replacer.Replace(s)
}

// redactionCore scrubs the message and string field values before writing
type redactionCore struct {
	zapcore.Core
	redactor *Redactor
}

func newRedactionCore(core zapcore.Core, redactor *Redactor) zapcore.Core {
	return &redactionCore{core, redactor}
}

func (c *redactionCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}
	return ce.AddCore(ent, c)
}

func (c *redactionCore) With(fields []zapcore.Field) zapcore.Core {
	return newRedactionCore(c.Core.With(fields), c.redactor)
}

func (c *redactionCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.redactor.Redact(ent.Message)
	for i := range fields {
		fields[i].String = c.redactor.Redact(fields[i].String)
	}
	return c.Core.Write(ent, fields)
}
