package wasmfib

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Runner 持有一个已实例化的模块，可重复调用其 fib 导出。
type Runner struct {
	rt    wazero.Runtime
	fn    api.Function
	entry string
	wide  bool
}

// NewRunner 编译并实例化 wasm 模块。bin 为空时使用内置 Module()，
// entry 为空时使用 DefaultEntry。
func NewRunner(ctx context.Context, bin []byte, entry string) (*Runner, error) {
	if len(bin) == 0 {
		bin = Module()
	}
	if entry == "" {
		entry = DefaultEntry
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	// tinygo 以 WASI 目标编译的模块需要 wasi_snapshot_preview1 导入。
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("init wasi: %w", err)
	}

	mod, err := rt.InstantiateWithConfig(ctx, bin, wazero.NewModuleConfig().WithStartFunctions("_initialize"))
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasm: %w", err)
	}

	fn := mod.ExportedFunction(entry)
	if fn == nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("exported function %q not found", entry)
	}

	wide, err := checkSignature(fn.Definition())
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("exported function %q: %w", entry, err)
	}

	return &Runner{rt: rt, fn: fn, entry: entry, wide: wide}, nil
}

// checkSignature 接受 (i32)->i32 与 (i64)->i64 两种签名，后者返回 wide=true。
func checkSignature(def api.FunctionDefinition) (bool, error) {
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 1 || len(results) != 1 || params[0] != results[0] {
		return false, fmt.Errorf("signature %v -> %v, want (i32) -> i32 or (i64) -> i64", params, results)
	}
	switch params[0] {
	case api.ValueTypeI32:
		return false, nil
	case api.ValueTypeI64:
		return true, nil
	default:
		return false, fmt.Errorf("unsupported value type %s", api.ValueTypeName(params[0]))
	}
}

// Entry 返回被调用的导出函数名。
func (r *Runner) Entry() string { return r.entry }

// Compute 调用导出函数计算 F(n)。i64 签名的结果截断为低 32 位，
// 与按模 2^32 回绕的结果一致。
func (r *Runner) Compute(ctx context.Context, n uint32) (uint32, error) {
	param := api.EncodeU32(n)
	if r.wide {
		param = uint64(n)
	}
	results, err := r.fn.Call(ctx, param)
	if err != nil {
		return 0, fmt.Errorf("call %s(%d): %w", r.entry, n, err)
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("call %s(%d): got %d results", r.entry, n, len(results))
	}
	return api.DecodeU32(results[0]), nil
}

// Close 释放运行时及其全部模块。
func (r *Runner) Close(ctx context.Context) error {
	return r.rt.Close(ctx)
}
