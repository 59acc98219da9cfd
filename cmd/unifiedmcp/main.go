package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	xerrors "UnifiedMCP-Client/internal/errors"
)

// exitTempFail 沿用 sysexits.h 的 EX_TEMPFAIL，提示脚本可以稍后重试。
const exitTempFail = 75

// main 是 unifiedmcp 命令行客户端的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		code := report(os.Stderr, err)
		stop()
		os.Exit(code)
	}
}

// report 输出错误并返回进程退出码。
func report(w io.Writer, err error) int {
	if xerrors.IsTransient(err) {
		fmt.Fprintf(w, "unifiedmcp: %v (%s, retrying may succeed)\n", err, xerrors.CodeOf(err))
		return exitTempFail
	}
	fmt.Fprintln(w, "unifiedmcp:", err)
	return 1
}
