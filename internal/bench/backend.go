package bench

import (
	"context"
	"errors"
	"fmt"

	"fibbench/internal/fibonacci"
	"fibbench/internal/wasmfib"
)

const (
	BackendNative = "native"
	BackendWasm   = "wasm"
)

var (
	ErrUnknownBackend    = errors.New("unknown backend")
	ErrUnsupportedPolicy = errors.New("overflow policy not supported by backend")
)

// Backend 执行一次 F(n) 计算。
type Backend interface {
	Name() string
	Compute(ctx context.Context, n uint32) (uint32, error)
	Close(ctx context.Context) error
}

// Native 直接调用 fibonacci 包。
type Native struct {
	Policy fibonacci.Policy
}

func (Native) Name() string { return BackendNative }

func (b Native) Compute(_ context.Context, n uint32) (uint32, error) {
	return b.Policy.Compute(n)
}

func (Native) Close(context.Context) error { return nil }

// Wasm 通过 wazero 调用模块导出；i32.add 只能回绕，因此仅支持 wrap 策略。
type Wasm struct {
	runner *wasmfib.Runner
}

// NewWasm 以给定模块字节构建后端，module 为空时使用内置模块。
func NewWasm(ctx context.Context, module []byte, entry string) (*Wasm, error) {
	r, err := wasmfib.NewRunner(ctx, module, entry)
	if err != nil {
		return nil, err
	}
	return &Wasm{runner: r}, nil
}

func (*Wasm) Name() string { return BackendWasm }

func (b *Wasm) Compute(ctx context.Context, n uint32) (uint32, error) {
	return b.runner.Compute(ctx, n)
}

func (b *Wasm) Close(ctx context.Context) error {
	return b.runner.Close(ctx)
}

// NewBackend 根据任务选择后端。task 需已 Normalize。
func NewBackend(ctx context.Context, task Task, module []byte) (Backend, error) {
	policy, err := fibonacci.ParsePolicy(task.Policy)
	if err != nil {
		return nil, err
	}
	switch task.Backend {
	case BackendNative:
		return Native{Policy: policy}, nil
	case BackendWasm:
		if policy != fibonacci.Wrap {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedPolicy, policy, BackendWasm)
		}
		w, err := NewWasm(ctx, module, task.Entry)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, task.Backend)
	}
}
