package transport

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// core adapts a Transport to zapcore.Core. Cores derived through With share
// the in-flight counter so Sync on any of them waits for every pending record.
type core struct {
	zapcore.LevelEnabler
	t        Transport
	fields   []zapcore.Field
	inflight *sync.WaitGroup
}

// NewCore returns a zapcore.Core that forwards records at or above t.Level()
// to t. Structured fields are flattened into a map and passed as metadata.
func NewCore(t Transport) zapcore.Core {
	return &core{
		LevelEnabler: t.Level(),
		t:            t,
		inflight:     &sync.WaitGroup{},
	}
}

func (c *core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	c.inflight.Add(1)
	c.t.Log(ent.Level.String(), ent.Message, c.metadata(fields), func(error) {
		c.inflight.Done()
	})
	if ent.Level > zapcore.ErrorLevel {
		// The process may be about to panic or exit.
		return c.Sync()
	}
	return nil
}

// Sync blocks until every record written through this core has been handled.
func (c *core) Sync() error {
	c.inflight.Wait()
	return nil
}

// metadata returns nil rather than an empty map so transports can tell
// records without fields apart.
func (c *core) metadata(fields []zapcore.Field) interface{} {
	if len(c.fields) == 0 && len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	return enc.Fields
}

// NewLogger tees base with one core per transport. base may be nil.
func NewLogger(base zapcore.Core, ts []Transport, opts ...zap.Option) *zap.Logger {
	cores := make([]zapcore.Core, 0, len(ts)+1)
	if base != nil {
		cores = append(cores, base)
	}
	for _, t := range ts {
		cores = append(cores, NewCore(t))
	}
	return zap.New(zapcore.NewTee(cores...), opts...)
}
