package compiler

import (
	"time"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
	"github.com/GriffinCanCode/ConceptCanvas/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// Compiler turns validated component source into sandbox-executable script.
// It holds no per-call state and is safe for concurrent use.
type Compiler struct {
	deps    *deps.Table
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// New creates a compiler over the given dependency table. A nil table uses
// the embedded default.
func New(table *deps.Table) *Compiler {
	if table == nil {
		table = deps.Default()
	}
	return &Compiler{deps: table, logger: zap.NewNop()}
}

// WithLogger adds debug logging of failed compiles
func (c *Compiler) WithLogger(logger *zap.Logger) *Compiler {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithMetrics adds metrics tracking to the compiler
func (c *Compiler) WithMetrics(metrics *monitoring.Metrics) *Compiler {
	c.metrics = metrics
	return c
}

// Deps returns the dependency table the compiler resolves imports against
func (c *Compiler) Deps() *deps.Table {
	return c.deps
}

// CompileSource enforces the size cap and then compiles. Oversized input
// returns ErrSourceTooLong rather than a diagnostic.
func (c *Compiler) CompileSource(src string) (Result, error) {
	if len(src) > MaxSourceBytes {
		return Result{}, ErrSourceTooLong
	}
	return c.Compile(src), nil
}

// Compile runs parse, dependency scan, identifier scan, rewrite and wrap.
// Each stage gates the next; the first failing stage determines the result.
func (c *Compiler) Compile(src string) Result {
	start := time.Now()
	res := c.compile(src)

	if c.metrics != nil {
		c.metrics.RecordCompile(res.Success, string(res.Kind()), len(res.Diagnostics), time.Since(start))
	}
	if !res.Success {
		c.logger.Debug("Compile failed",
			zap.String("kind", string(res.Kind())),
			zap.Int("diagnostics", len(res.Diagnostics)),
			zap.Duration("duration", time.Since(start)))
	}
	return res
}

func (c *Compiler) compile(src string) Result {
	if len(src) > MaxSourceBytes {
		return failed([]Diagnostic{{
			Kind:    KindParseError,
			Message: ErrSourceTooLong.Error(),
			Line:    1,
			Column:  1,
		}})
	}

	u, diags := transpile(src)
	if len(diags) > 0 {
		return failed(diags)
	}

	if diags := scanDependencies(u, c.deps); len(diags) > 0 {
		return failed(diags)
	}

	if diags := scanIdentifiers(u); len(diags) > 0 {
		return failed(diags)
	}

	code := rewrite(u, c.deps)
	return Result{
		Success:    true,
		Executable: wrap(code, ComponentName(src)),
	}
}
