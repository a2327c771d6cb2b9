// Package limits implements the resource-ceiling policy object shared by
// every other bashkit component (§4.5 / §5 of the engine specification).
//
// An [ExecutionLimits] value is immutable once handed to a [bashkit.Builder];
// the mutable [Counters] it gates are created fresh for every Engine.Execute
// call and reset to zero at the start of each one.
package limits

import "time"

// ExecutionLimits is the policy object built at engine construction and
// never mutated afterwards. Every other component reads it to decide when to
// trip a [Kind] breach; nothing in the engine may bypass it.
type ExecutionLimits struct {
	// Lexer / parser ceilings.
	MaxInputBytes    int64         `yaml:"max_input_bytes"`
	ParserTimeout    time.Duration `yaml:"parser_timeout"`
	ParserFuelOps    int64         `yaml:"parser_fuel_ops"`
	MaxASTDepth      int           `yaml:"max_ast_depth"`
	MaxArithmDepth   int           `yaml:"max_arithm_depth"`
	MaxAwkParseDepth int           `yaml:"max_awk_parse_depth"`
	MaxJqParseDepth  int           `yaml:"max_jq_parse_depth"`

	// Interpreter ceilings.
	MaxCommands            int64         `yaml:"max_commands"`
	MaxLoopIterations      int64         `yaml:"max_loop_iterations"`
	MaxTotalLoopIterations int64         `yaml:"max_total_loop_iterations"`
	MaxFunctionDepth       int           `yaml:"max_function_depth"`
	ExecutionTimeout       time.Duration `yaml:"execution_timeout"`
	MaxOutputBytes         int64         `yaml:"max_output_bytes"`
}

// Conservative is a tight default profile suitable for executing scripts
// authored by an untrusted model inside a shared multi-tenant process.
func Conservative() ExecutionLimits {
	return ExecutionLimits{
		MaxInputBytes:    256 * 1024,
		ParserTimeout:    2 * time.Second,
		ParserFuelOps:    2_000_000,
		MaxASTDepth:      128,
		MaxArithmDepth:   64,
		MaxAwkParseDepth: 64,
		MaxJqParseDepth:  64,

		MaxCommands:            20_000,
		MaxLoopIterations:      10_000,
		MaxTotalLoopIterations: 100_000,
		MaxFunctionDepth:       128,
		ExecutionTimeout:       10 * time.Second,
		MaxOutputBytes:         4 * 1024 * 1024,
	}
}

// Relaxed widens the ceilings for trusted batch jobs or local development
// where the host trusts the script author: input size, parser fuel,
// commands, loop iterations, execution timeout and output bytes tenfold,
// the parser timeout fivefold, and the AST, arithmetic and function depths
// twofold. The awk and jq parse-depth ceilings stay at their Conservative
// values.
func Relaxed() ExecutionLimits {
	l := Conservative()
	l.MaxInputBytes *= 10
	l.ParserTimeout *= 5
	l.ParserFuelOps *= 10
	l.MaxASTDepth *= 2
	l.MaxArithmDepth *= 2
	l.MaxCommands *= 10
	l.MaxLoopIterations *= 10
	l.MaxTotalLoopIterations *= 10
	l.MaxFunctionDepth *= 2
	l.ExecutionTimeout *= 10
	l.MaxOutputBytes *= 10
	return l
}

// Kind identifies which ceiling a [LimitError] breached.
type Kind string

const (
	KindInputTooLarge      Kind = "input-too-large"
	KindParserTimeout      Kind = "parser-timeout"
	KindParserFuel         Kind = "parser-fuel"
	KindASTDepth           Kind = "ast-depth"
	KindArithmDepth        Kind = "arithm-depth"
	KindCommands           Kind = "commands"
	KindLoopIterations     Kind = "loop-iterations"
	KindTotalLoopIterations Kind = "total-loop-iterations"
	KindFunctionDepth      Kind = "function-depth"
	KindTimeout            Kind = "timeout"
	KindOutputBytes        Kind = "output-bytes"
	KindFsBudget           Kind = "fs-budget"
)

// LimitError reports that the engine terminated a script because a ceiling
// in [ExecutionLimits] was breached. It is never a correctness bug in the
// script; it is a policy decision by the host.
type LimitError struct {
	Kind  Kind
	Limit int64
	Got   int64
}

func (e *LimitError) Error() string {
	return "bashkit: limit exceeded: " + string(e.Kind)
}

// Counters tracks the monotonically increasing state gated by an
// [ExecutionLimits] for exactly one execute call. Counters are never shared
// across calls; [New] always returns a zeroed value.
type Counters struct {
	limits ExecutionLimits

	Commands           int64
	LoopIterations     int64 // not updated: LoopIteration counts per loop in the caller's own counter
	TotalLoopIterations int64
	FunctionDepth      int

	ParserFuelSpent int64
	ASTDepth        int
	ArithmDepth     int
	parseStart      time.Time

	Deadline time.Time
}

// New creates a fresh counter set gated by lim, with Deadline computed from
// lim.ExecutionTimeout starting now. A zero ExecutionTimeout means no
// deadline is enforced.
func New(lim ExecutionLimits) *Counters {
	c := &Counters{limits: lim}
	if lim.ExecutionTimeout > 0 {
		c.Deadline = time.Now().Add(lim.ExecutionTimeout)
	}
	return c
}

// Limits returns the policy object this counter set is gated by.
func (c *Counters) Limits() ExecutionLimits { return c.limits }

// TimedOut reports whether the execution deadline has passed.
func (c *Counters) TimedOut() bool {
	return !c.Deadline.IsZero() && time.Now().After(c.Deadline)
}

// StartParsing marks the wall-clock start of parsing, the first time it is
// called. A Counters value handed to repeated Parse calls (source, eval)
// measures the parser-timeout ceiling from the very first one, consistent
// with child parsers never getting a fresh budget.
func (c *Counters) StartParsing() {
	if c.parseStart.IsZero() {
		c.parseStart = time.Now()
	}
}

// ParserDeadline reports the parser's own wall-clock ceiling
// (ExecutionLimits.ParserTimeout) as a LimitError, or nil if it has not yet
// been breached. Kept distinct from [Counters.TimedOut], which guards the
// interpreter's overall execution-timeout ceiling, so a parse-time breach
// reports KindParserTimeout rather than KindTimeout.
func (c *Counters) ParserDeadline() error {
	if c.limits.ParserTimeout <= 0 || c.parseStart.IsZero() {
		return nil
	}
	if time.Since(c.parseStart) > c.limits.ParserTimeout {
		return &LimitError{Kind: KindParserTimeout}
	}
	return nil
}

// Command increments the total-commands counter and returns a [LimitError]
// if the ceiling was breached.
func (c *Counters) Command() error {
	c.Commands++
	if c.limits.MaxCommands > 0 && c.Commands > c.limits.MaxCommands {
		return &LimitError{Kind: KindCommands, Limit: c.limits.MaxCommands, Got: c.Commands}
	}
	if c.TimedOut() {
		return &LimitError{Kind: KindTimeout}
	}
	return nil
}

// LoopIteration increments both the per-loop and cumulative loop counters.
// perLoop is a pointer to the calling loop's own local counter, since the
// per-loop ceiling resets at every new loop construct while the cumulative
// one does not (§4.5).
func (c *Counters) LoopIteration(perLoop *int64) error {
	*perLoop++
	c.TotalLoopIterations++
	if c.limits.MaxLoopIterations > 0 && *perLoop > c.limits.MaxLoopIterations {
		return &LimitError{Kind: KindLoopIterations, Limit: c.limits.MaxLoopIterations, Got: *perLoop}
	}
	if c.limits.MaxTotalLoopIterations > 0 && c.TotalLoopIterations > c.limits.MaxTotalLoopIterations {
		return &LimitError{Kind: KindTotalLoopIterations, Limit: c.limits.MaxTotalLoopIterations, Got: c.TotalLoopIterations}
	}
	if c.TimedOut() {
		return &LimitError{Kind: KindTimeout}
	}
	return nil
}

// EnterFunction increments the function-call depth counter.
func (c *Counters) EnterFunction() error {
	c.FunctionDepth++
	if c.limits.MaxFunctionDepth > 0 && c.FunctionDepth > c.limits.MaxFunctionDepth {
		return &LimitError{Kind: KindFunctionDepth, Limit: int64(c.limits.MaxFunctionDepth), Got: int64(c.FunctionDepth)}
	}
	return nil
}

// LeaveFunction decrements the function-call depth counter.
func (c *Counters) LeaveFunction() {
	if c.FunctionDepth > 0 {
		c.FunctionDepth--
	}
}

// ParserFuel decrements the remaining parser fuel by one operation.
func (c *Counters) ParserFuel() error {
	c.ParserFuelSpent++
	if c.limits.ParserFuelOps > 0 && c.ParserFuelSpent > c.limits.ParserFuelOps {
		return &LimitError{Kind: KindParserFuel, Limit: c.limits.ParserFuelOps, Got: c.ParserFuelSpent}
	}
	return nil
}

// EnterAST increments the AST recursion depth counter.
func (c *Counters) EnterAST() error {
	c.ASTDepth++
	if c.limits.MaxASTDepth > 0 && c.ASTDepth > c.limits.MaxASTDepth {
		return &LimitError{Kind: KindASTDepth, Limit: int64(c.limits.MaxASTDepth), Got: int64(c.ASTDepth)}
	}
	return nil
}

// LeaveAST decrements the AST recursion depth counter.
func (c *Counters) LeaveAST() {
	if c.ASTDepth > 0 {
		c.ASTDepth--
	}
}

// EnterArithm increments the arithmetic sub-expression recursion counter,
// which is capped separately from the AST depth per §4.2.
func (c *Counters) EnterArithm() error {
	c.ArithmDepth++
	if c.limits.MaxArithmDepth > 0 && c.ArithmDepth > c.limits.MaxArithmDepth {
		return &LimitError{Kind: KindArithmDepth, Limit: int64(c.limits.MaxArithmDepth), Got: int64(c.ArithmDepth)}
	}
	return nil
}

// LeaveArithm decrements the arithmetic recursion counter.
func (c *Counters) LeaveArithm() {
	if c.ArithmDepth > 0 {
		c.ArithmDepth--
	}
}

// Remaining budget a child parser (spawned for a command substitution or a
// re-parsed heredoc body) may inherit: never a fresh ceiling, always what is
// left of the parent's (§4.2).
func (c *Counters) ChildParserBudget() (remainingDepth int, remainingFuel int64) {
	remainingDepth = c.limits.MaxASTDepth - c.ASTDepth
	if c.limits.MaxASTDepth == 0 {
		remainingDepth = 0
	}
	remainingFuel = c.limits.ParserFuelOps - c.ParserFuelSpent
	if c.limits.ParserFuelOps == 0 {
		remainingFuel = 0
	}
	return
}
