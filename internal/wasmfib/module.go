// Package wasmfib 在 wazero 沙箱中执行与 fibonacci.Compute 相同的迭代循环。
package wasmfib

// DefaultEntry 是模块导出的函数名。
const DefaultEntry = "fib"

const (
	secType     = 0x01
	secFunction = 0x03
	secExport   = 0x07
	secCode     = 0x0a

	valI32    = 0x7f
	funcType  = 0x60
	blockVoid = 0x40
	exportFn  = 0x00

	opBlock    = 0x02
	opLoop     = 0x03
	opIf       = 0x04
	opElse     = 0x05
	opEnd      = 0x0b
	opBr       = 0x0c
	opBrIf     = 0x0d
	opLocalGet = 0x20
	opLocalSet = 0x21
	opI32Const = 0x41
	opI32LtU   = 0x49
	opI32GeU   = 0x4f
	opI32Add   = 0x6a
)

// 局部变量下标：0 为参数 n。
const (
	localN = iota
	localPrev
	localCurrent
	localNext
	localStep
)

// fibBody 等价于：
//
//	if n < 2 { return n }
//	prev, current := 0, 1
//	for step := 1; step < n; step++ { prev, current = current, prev+current }
//	return current
//
// i32.add 按模 2^32 回绕。
var fibBody = []byte{
	opLocalGet, localN, opI32Const, 2, opI32LtU,
	opIf, valI32,
	opLocalGet, localN,
	opElse,
	opI32Const, 1, opLocalSet, localCurrent,
	opI32Const, 1, opLocalSet, localStep,
	opBlock, blockVoid,
	opLoop, blockVoid,
	opLocalGet, localStep, opLocalGet, localN, opI32GeU, opBrIf, 1,
	opLocalGet, localPrev, opLocalGet, localCurrent, opI32Add, opLocalSet, localNext,
	opLocalGet, localCurrent, opLocalSet, localPrev,
	opLocalGet, localNext, opLocalSet, localCurrent,
	opLocalGet, localStep, opI32Const, 1, opI32Add, opLocalSet, localStep,
	opBr, 0,
	opEnd, // loop
	opEnd, // block
	opLocalGet, localCurrent,
	opEnd, // if
	opEnd, // func
}

// Module 返回导出 fib(i32) -> i32 的最小 wasm 二进制。
func Module() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	out = appendSection(out, secType, []byte{1, funcType, 1, valI32, 1, valI32})
	out = appendSection(out, secFunction, []byte{1, 0})

	export := []byte{1}
	export = appendName(export, DefaultEntry)
	export = append(export, exportFn, 0)
	out = appendSection(out, secExport, export)

	// 4 个 i32 局部变量：prev, current, next, step
	body := append([]byte{1, 4, valI32}, fibBody...)
	code := []byte{1}
	code = appendULEB128(code, uint32(len(body)))
	code = append(code, body...)
	return appendSection(out, secCode, code)
}

func appendSection(dst []byte, id byte, payload []byte) []byte {
	dst = append(dst, id)
	dst = appendULEB128(dst, uint32(len(payload)))
	return append(dst, payload...)
}

func appendName(dst []byte, name string) []byte {
	dst = appendULEB128(dst, uint32(len(name)))
	return append(dst, name...)
}

func appendULEB128(dst []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}
