//go:build windows

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newEchoCmd is a stub on windows: iocore's IOCP backend only implements the
// registration/wait plumbing (SubmitOp needs a full OVERLAPPED socket layer,
// out of core scope — see iocore/backend/iocp/iocp_windows.go), so the echo
// demo has nothing to drive there yet.
func newEchoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "echo",
		Short: "Not yet supported on windows (IOCP SubmitOp is unimplemented)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("asyncioctl echo: unsupported on windows")
		},
	}
}
