// File: cmd/version.go
package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is the application version.
// This value is intended to be set at build time using ldflags.
// Example: go build -ldflags "-X github.com/xkilldash9x/pilot-cli/cmd.Version=1.0.0"
var Version = "0.1.0"

// newVersionCmd reports the version plus whatever build metadata the
// toolchain embedded.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("pilot-cli version %s\n", Version)
			info, ok := debug.ReadBuildInfo()
			if !ok {
				return
			}
			cmd.Printf("  go: %s\n", info.GoVersion)
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					cmd.Printf("  revision: %s\n", setting.Value)
				case "vcs.time":
					cmd.Printf("  built: %s\n", setting.Value)
				}
			}
		},
	}
}
