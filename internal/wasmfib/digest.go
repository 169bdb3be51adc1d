package wasmfib

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrDigestMismatch 表示模块字节与期望摘要不一致。
var ErrDigestMismatch = errors.New("wasm module digest mismatch")

// Digest 返回模块的 keccak-256 摘要（十六进制小写）。
func Digest(bin []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(bin)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyDigest 校验模块摘要；want 为空时跳过校验，可带 0x 前缀。
func VerifyDigest(bin []byte, want string) error {
	want = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(want), "0x"))
	if want == "" {
		return nil
	}
	if got := Digest(bin); got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrDigestMismatch, got, want)
	}
	return nil
}
