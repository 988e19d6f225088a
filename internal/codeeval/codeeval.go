// Package codeeval implements the sandboxed coding-question evaluator
// behind /interview/{id}/code-eval: a fresh goja VM per test case, JS
// only, a hard wall-clock budget, no host bindings exposed to the
// script. Grounded on
// system/tee/script_engine.go (fresh-runtime-per-call, console capture,
// entry-point lookup) and
// internal/services/functions/tee_executor.go (the ctx-cancel-drives-
// rt.Interrupt goroutine and *goja.InterruptedError classification) —
// github.com/dop251/goja.
package codeeval

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
)

// Budget is the hard wall-clock limit for a single test-case execution
// (spec §13 Open Question 2 resolution).
const Budget = 2 * time.Second

// Case is one test case: the candidate's entry point is invoked with
// Input and its return value compared against Expected by the caller
// (the evaluator only reports what the script produced).
type Case struct {
	Input map[string]any
}

// Result is one test case's outcome.
type Result struct {
	Output   interface{} `json:"output"`
	Logs     []string    `json:"logs,omitempty"`
	Error    string      `json:"error,omitempty"`
	TimedOut bool        `json:"timedOut,omitempty"`
}

// Run executes functionName(input) from source in a fresh VM, isolated
// per call: no shared runtime, no host function bindings beyond
// console.log, capped at Budget wall-clock time.
func Run(ctx context.Context, source, functionName string, c Case) (Result, error) {
	tctx, cancel := context.WithTimeout(ctx, Budget)
	defer cancel()

	vm := goja.New()
	var logs []string
	if err := attachConsole(vm, &logs); err != nil {
		return Result{}, apierrors.Internal("attach console", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-tctx.Done():
			vm.Interrupt(tctx.Err())
		case <-stop:
		}
	}()

	if _, err := vm.RunString(source); err != nil {
		return Result{Logs: logs, Error: classify(err, tctx)}, nil
	}

	entry, ok := goja.AssertFunction(vm.Get(functionName))
	if !ok {
		return Result{Logs: logs, Error: fmt.Sprintf("entry point %q is not a function", functionName)}, nil
	}

	resultVal, err := entry(goja.Undefined(), vm.ToValue(c.Input))
	if err != nil {
		msg := classify(err, tctx)
		return Result{Logs: logs, Error: msg, TimedOut: tctx.Err() != nil}, nil
	}

	var output interface{}
	if resultVal != nil && !goja.IsUndefined(resultVal) && !goja.IsNull(resultVal) {
		output = resultVal.Export()
	}
	return Result{Output: output, Logs: logs}, nil
}

func attachConsole(vm *goja.Runtime, logs *[]string) error {
	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		*logs = append(*logs, fmt.Sprint(args...))
		return goja.Undefined()
	}
	for _, name := range []string{"log", "info", "warn", "error"} {
		if err := console.Set(name, logFn); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

func classify(err error, ctx context.Context) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "execution timed out"
	}
	switch typed := err.(type) {
	case *goja.InterruptedError:
		return "execution timed out"
	case *goja.Exception:
		return typed.Error()
	default:
		return err.Error()
	}
}
