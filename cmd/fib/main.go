// Command fib 打印第 n 个 Fibonacci 数（32 位无符号），默认 n = 46。
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"fibbench/internal/fibonacci"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("fib", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	n := fs.Uint32P("n", "n", 46, "Fibonacci index")
	policyName := fs.StringP("policy", "p", "wrap", "overflow policy: wrap or checked")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	policy, err := fibonacci.ParsePolicy(*policyName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	result, err := policy.Compute(*n)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, result)
	return 0
}
