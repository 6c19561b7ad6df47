package cmd

import (
	"fmt"
	"runtime"

	"github.com/gophertribe/devtool/build"
	"github.com/spf13/cobra"
)

const (
	binaryPath    = "dist/boardtemp"
	mainPackage   = "./cmd/boardtemp"
	configPackage = "github.com/mklimuk/boardtemp/config"
	builderImage  = "gophertribe/gobuild:1.25-bookworm"
)

// BuildCmd builds the boardtemp cli natively or inside the builder image when
// the target differs from the host. Cgo is required by the USB HID adapter.
func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build boardtemp cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			targetOS, err := flags.GetString("os")
			if err != nil {
				return fmt.Errorf("could not get os flag: %w", err)
			}
			targetArch, err := flags.GetString("arch")
			if err != nil {
				return fmt.Errorf("could not get arch flag: %w", err)
			}
			version, err := flags.GetString("version")
			if err != nil {
				return fmt.Errorf("could not get version flag: %w", err)
			}
			crossOS, err := flags.GetString("cross-os")
			if err != nil {
				return fmt.Errorf("could not get cross-os flag: %w", err)
			}
			crossArch, err := flags.GetString("cross-arch")
			if err != nil {
				return fmt.Errorf("could not get cross-arch flag: %w", err)
			}

			if targetOS == runtime.GOOS && targetArch == runtime.GOARCH {
				if crossOS != "" && crossArch != "" {
					targetOS = crossOS
					targetArch = crossArch
				}
				return build.GoBuild(binaryPath, mainPackage, build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: configPackage,
					EnableCgo:     true,
					Arch:          targetArch,
					OS:            targetOS,
				})
			}

			noCache, err := flags.GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			// the builder image runs this tool again as a native build for the target
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", targetOS, targetArch),
				[]string{"build", "--version", version, "--cross-os", crossOS, "--cross-arch", crossArch},
				build.DockerBuildOpts{
					NoCache: noCache,
					Image:   builderImage,
				})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building the app")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")
	return cmd
}
