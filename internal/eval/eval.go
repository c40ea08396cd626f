// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

// Package eval turns a source configuration file into a rosters list and a
// duties list (spec.md §4.4). The teacher's configuration language (Nickel)
// and its external-process evaluation step are out of scope (spec.md §1);
// this port consumes a JSON-superset source text directly: valid JSON,
// except that object/array values may also be one of the g8r_* pseudo-
// function calls or a bare `runtime.<path>` identifier reference. Both
// forms are rewritten away before the text is parsed as JSON, which is the
// Go-native equivalent of the teacher's "prepend a let-binding, evaluate in
// a scratch file" approach without needing an external interpreter process.
package eval

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"g8r/pkg/kv"
	"g8r/pkg/model"
)

// Resolver supplies values for the pre-evaluation-resolvable pseudo
// functions (g8r_get, g8r_global, g8r_const, g8r_env).
type Resolver interface {
	Resolve(key string) (any, bool)
	Env(key string) (string, bool)
}

// varCtxResolver adapts a kv.VariableContext plus an environment lookup
// function into a Resolver.
type varCtxResolver struct {
	ctx *kv.VariableContext
	env func(string) (string, bool)
}

// NewResolver builds the standard Resolver used by the control plane: keys
// resolve through the VariableContext (const -> stack -> global), and
// g8r_env reads the process environment.
func NewResolver(ctx *kv.VariableContext, env func(string) (string, bool)) Resolver {
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}
	return &varCtxResolver{ctx: ctx, env: env}
}

func (r *varCtxResolver) Resolve(key string) (any, bool) { return r.ctx.Resolve(key) }
func (r *varCtxResolver) Env(key string) (string, bool)  { return r.env(key) }

var callPattern = regexp.MustCompile(`g8r_(get|global|const|output|env|secret|set)\(([^()]*)\)`)
var runtimeRefPattern = regexp.MustCompile(`\bruntime(?:\.[A-Za-z_][A-Za-z0-9_]*)+\b`)

// call is one matched pseudo-function occurrence.
type call struct {
	start, end int
	fn         string
	args       []string
}

// parseCalls scans text for g8r_* calls, returning them in source order.
func parseCalls(text string) ([]call, error) {
	matches := callPattern.FindAllStringSubmatchIndex(text, -1)
	calls := make([]call, 0, len(matches))
	for _, m := range matches {
		fn := text[m[2]:m[3]]
		rawArgs := text[m[4]:m[5]]
		args, err := splitArgs(rawArgs)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed arguments to g8r_%s: %v", model.ErrConfig, fn, err)
		}
		calls = append(calls, call{start: m[0], end: m[1], fn: fn, args: args})
	}
	return calls, nil
}

// splitArgs parses a comma-separated list of double-quoted string literals.
func splitArgs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var args []string
	var buf strings.Builder
	inQuote := false
	escaped := false
	for _, r := range raw {
		switch {
		case escaped:
			buf.WriteRune(r)
			escaped = false
		case r == '\\' && inQuote:
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			args = append(args, buf.String())
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string literal")
	}
	args = append(args, buf.String())
	for i, a := range args {
		args[i] = strings.TrimSpace(a)
	}
	return args, nil
}

// RewriteResult is the outcome of rewriting a source's instruction-bearing
// pseudo-function calls.
type RewriteResult struct {
	Text         string
	Instructions []model.Instruction
}

// RewriteInstructions implements spec.md §4.4 mode 3. Replacements are
// performed in reverse order of match position so earlier offsets remain
// valid. g8r_set is forbidden in configuration input. Unresolved
// g8r_get/global/const at rewrite time is a ConfigError naming the missing
// key. g8r_output and g8r_secret always become `__INSTRUCTION_<n>__`
// placeholder tokens, numbered monotonically starting at 1, regardless of
// whether they could theoretically be resolved here — their resolution is
// the Controller's job, just before module invocation.
func RewriteInstructions(source string, resolver Resolver) (RewriteResult, error) {
	calls, err := parseCalls(source)
	if err != nil {
		return RewriteResult{}, err
	}

	// First pass (forward, source order, no mutation): resolve values for
	// get/global/const/env and assign monotonically increasing token
	// numbers to output/secret occurrences. Token numbering must be
	// computed in source order regardless of substitution order below.
	type planned struct {
		call
		replacement string
		instruction *model.Instruction
	}
	plan := make([]planned, len(calls))
	var instructions []model.Instruction
	tokenNum := 0

	for i, c := range calls {
		switch c.fn {
		case "set":
			return RewriteResult{}, fmt.Errorf("%w: g8r_set is forbidden in configuration input", model.ErrConfig)

		case "get", "global", "const":
			if len(c.args) != 1 {
				return RewriteResult{}, fmt.Errorf("%w: g8r_%s expects exactly one argument", model.ErrConfig, c.fn)
			}
			key := c.args[0]
			value, ok := resolver.Resolve(key)
			if !ok {
				return RewriteResult{}, fmt.Errorf("%w: unresolved %s key %q", model.ErrConfig, c.fn, key)
			}
			plan[i] = planned{call: c, replacement: serialize(value)}

		case "env":
			if len(c.args) != 1 {
				return RewriteResult{}, fmt.Errorf("%w: g8r_env expects exactly one argument", model.ErrConfig)
			}
			key := c.args[0]
			value, ok := resolver.Env(key)
			if !ok {
				return RewriteResult{}, fmt.Errorf("%w: unresolved environment variable %q", model.ErrConfig, key)
			}
			plan[i] = planned{call: c, replacement: serialize(value)}

		case "output", "secret":
			tokenNum++
			tok := fmt.Sprintf("__INSTRUCTION_%d__", tokenNum)
			instructions = append(instructions, model.Instruction{
				Token: tok,
				Type:  "g8r_" + c.fn,
				Args:  c.args,
			})
			plan[i] = planned{call: c, replacement: serialize(tok), instruction: &instructions[len(instructions)-1]}
		}
	}

	// Second pass (reverse position order): substitute into the text.
	// Because it runs strictly right-to-left, every offset recorded during
	// the first pass (against the original, unmutated source) is still
	// valid at the moment it is used.
	out := source
	for i := len(plan) - 1; i >= 0; i-- {
		p := plan[i]
		out = out[:p.start] + p.replacement + out[p.end:]
	}

	return RewriteResult{Text: out, Instructions: instructions}, nil
}

// RewriteRuntimeRefs resolves bare `runtime.<path>` identifier references
// against a rendered runtime-context tree (spec.md §4.4 mode 2). Unlike
// g8r_output, these resolve during evaluation because by the time batch
// k>0 is (re-)evaluated the referenced duty has already completed.
func RewriteRuntimeRefs(source string, runtimeTree map[string]any) string {
	return runtimeRefPattern.ReplaceAllStringFunc(source, func(match string) string {
		path := strings.TrimPrefix(match, "runtime.")
		value, ok := lookupDotted(runtimeTree, path)
		if !ok {
			// Leave unresolved references untouched; json.Unmarshal will
			// fail downstream with a useful parse error, and a reference
			// to a duty that hasn't run yet is a configuration mistake,
			// not a runtime-context contract violation.
			return match
		}
		return serialize(value)
	})
}

func lookupDotted(tree map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = tree
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// serialize renders a Go value as g8r-config-language text, per spec.md
// §4.4's serialization rules: strings are quoted with embedded quotes
// backslash-escaped, which is exactly what encoding/json.Marshal already
// guarantees for our JSON-superset text.
func serialize(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Values reaching here are always JSON-marshalable (strings,
		// numbers, bools, maps built from parsed JSON).
		return strconv.Quote(fmt.Sprint(v))
	}
	return string(b)
}
