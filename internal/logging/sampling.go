package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore applies volume sampling to entries below Error. A busy
// queue can emit thousands of per-chunk trace lines per job; errors and
// fatals always pass through unsampled.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	return &errorBypassCore{
		direct: core,
		sampled: zapcore.NewSamplerWithOptions(
			core,
			cfg.Tick.Duration(),
			cfg.Initial,
			cfg.Thereafter,
		),
	}
}

// errorBypassCore routes entries at Error and above around the sampler.
type errorBypassCore struct {
	direct  zapcore.Core
	sampled zapcore.Core
}

func (c *errorBypassCore) Enabled(lvl zapcore.Level) bool {
	return c.direct.Enabled(lvl)
}

func (c *errorBypassCore) With(fields []zapcore.Field) zapcore.Core {
	return &errorBypassCore{
		direct:  c.direct.With(fields),
		sampled: c.sampled.With(fields),
	}
}

func (c *errorBypassCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level >= zapcore.ErrorLevel {
		return c.direct.Check(e, ce)
	}
	return c.sampled.Check(e, ce)
}

func (c *errorBypassCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.direct.Write(e, fields)
}

func (c *errorBypassCore) Sync() error {
	return c.direct.Sync()
}
