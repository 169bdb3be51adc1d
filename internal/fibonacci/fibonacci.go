// Package fibonacci 计算 32 位无符号整数宽度下的第 n 个 Fibonacci 数。
//
// Compute 采用回绕（wraparound）语义：加法按模 2^32 进行，与 Go 的 uint32
// 原生行为一致。ComputeChecked 采用快速失败语义：首次进位溢出即返回
// *OverflowError。两种策略在 n <= MaxIndex 时结果相同。
package fibonacci

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// MaxIndex 是结果仍能放入 uint32 的最大下标：F(47) = 2971215073。
// F(48) = 4807526976 是第一个溢出的值。
const MaxIndex uint32 = 47

// ErrOverflow 表示中间和超出 2^32-1。
var ErrOverflow = errors.New("fibonacci: arithmetic overflow")

// OverflowError 记录溢出发生的下标与步数。
type OverflowError struct {
	N    uint32
	Step uint32
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("fibonacci: F(%d) overflows uint32 at step %d", e.N, e.Step)
}

// Is 使 errors.Is(err, ErrOverflow) 成立。
func (e *OverflowError) Is(target error) bool {
	return target == ErrOverflow
}

// Compute 返回 F(n)，溢出时按模 2^32 回绕。
func Compute(n uint32) uint32 {
	if n < 2 {
		return n
	}
	var prev, current uint32 = 0, 1
	// i 从 1 数到 n-1，共 n-1 次加法；n = MaxUint32 时计数器也不会回绕。
	for i := uint32(1); i < n; i++ {
		next := prev + current
		prev = current
		current = next
	}
	return current
}

// ComputeChecked 返回 F(n)，在第一次溢出时立即失败。
func ComputeChecked(n uint32) (uint32, error) {
	if n < 2 {
		return n, nil
	}
	var prev, current uint32 = 0, 1
	for i := uint32(1); i < n; i++ {
		next, carry := bits.Add32(prev, current, 0)
		if carry != 0 {
			return 0, &OverflowError{N: n, Step: i + 1}
		}
		prev = current
		current = next
	}
	return current, nil
}

// Policy 选择溢出处理方式。
type Policy int

const (
	// Wrap 按模 2^32 静默回绕。
	Wrap Policy = iota
	// Checked 在溢出时返回 ErrOverflow。
	Checked
)

func (p Policy) String() string {
	switch p {
	case Wrap:
		return "wrap"
	case Checked:
		return "checked"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Compute 按策略计算 F(n)。
func (p Policy) Compute(n uint32) (uint32, error) {
	switch p {
	case Wrap:
		return Compute(n), nil
	case Checked:
		return ComputeChecked(n)
	default:
		return 0, fmt.Errorf("unknown overflow policy %d", int(p))
	}
}

// ParsePolicy 解析 "wrap" / "checked"，空字符串视为 wrap。
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wrap":
		return Wrap, nil
	case "checked":
		return Checked, nil
	default:
		return Wrap, fmt.Errorf("unknown overflow policy %q", s)
	}
}
