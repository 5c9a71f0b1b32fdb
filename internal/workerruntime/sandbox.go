package workerruntime

import (
	"context"
	"fmt"
	"time"

	"github.com/bifrostlabs/bifrost/internal/pkg/secrets"
	"github.com/dop251/goja"
)

// Sandbox runs workflow functions inside a restricted goja VM. One
// Sandbox is owned by a single worker process; a dispatch message never
// runs concurrently with another inside the same process (prefetch=1,
// concurrency=1 per §4.4/§4.5), so there is no VM pool here.
type Sandbox struct {
	memoryLimit int64
}

func NewSandbox() *Sandbox {
	return &Sandbox{memoryLimit: 256 * 1024 * 1024}
}

// LogFunc receives one line emitted by the running script, in order.
type LogFunc func(level, message string)

// Result is what the sandboxed function returned, plus whether it
// logged any non-fatal errors (used to decide CompletedWithErrors, §4.6
// step 7).
type Result struct {
	Value        interface{}
	LoggedErrors int
}

// Run executes functionName from code with parameters as its single
// argument object, honoring ctx for both the wall-clock budget and
// cooperative cancellation (the caller cancels ctx when it observes
// Cancelling). Any credential the script materializes through the
// bound s3/mongo/mysql/ftp host functions is registered with secretReg
// so the caller's redaction pass (§5 Shared resource policy) catches it.
func (s *Sandbox) Run(ctx context.Context, code, functionName string, parameters map[string]interface{}, secretReg *secrets.Registry, onLog LogFunc) (*Result, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	_ = vm.Set("eval", goja.Undefined())
	_ = vm.Set("Function", goja.Undefined())
	bindHostFunctions(vm, ctx, secretReg)

	result := &Result{}
	console := vm.NewObject()
	logAt := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			msg := formatArgs(call.Arguments)
			if level == "error" {
				result.LoggedErrors++
			}
			onLog(level, msg)
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logAt("info"))
	_ = console.Set("info", logAt("info"))
	_ = console.Set("warn", logAt("warn"))
	_ = console.Set("error", logAt("error"))
	_ = vm.Set("console", console)

	if _, err := vm.RunString(code); err != nil {
		return nil, fmt.Errorf("module load failed: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get(functionName))
	if !ok {
		return nil, fmt.Errorf("function %q not found in module", functionName)
	}

	timer := time.AfterFunc(time.Until(deadlineOrFar(ctx)), func() {
		vm.Interrupt("execution timeout exceeded")
	})
	defer timer.Stop()

	done := make(chan struct{})
	var value goja.Value
	var runErr error
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("sandbox panic: %v", r)
			}
		}()
		value, runErr = fn(goja.Undefined(), vm.ToValue(parameters))
	}()

	select {
	case <-ctx.Done():
		vm.Interrupt("context cancelled")
		<-done
		return result, ctx.Err()
	case <-done:
		if runErr != nil {
			return result, runErr
		}
		result.Value = exportValue(value)
		return result, nil
	}
}

func deadlineOrFar(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(24 * time.Hour)
}

func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

func formatArgs(args []goja.Value) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%v", a)
	}
	return out
}
