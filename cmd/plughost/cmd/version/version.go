// Package version implements reporting of the host build version.
package version

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"plughost.software/plughost/cmd/plughost/internal/flags/enum"
)

const (
	FlagFormat                = "format"
	FlagFormatShortHand       = "f"
	FlagFormatJSON            = "json"
	FlagFormatGoBuildInfo     = "gobuildinfo"
	FlagFormatGoBuildInfoJSON = "gobuildinfojson"
)

// BuildVersion is an external variable that can be set at build time to
// override the version detected from the Go build info. It is set to "n/a"
// by default, indicating that no version has been specified. The variable
// can be adjusted at build time with
//
//	-ldflags "-X plughost.software/plughost/cmd/plughost/cmd/version.BuildVersion=1.2.3"
var BuildVersion = "n/a"

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Retrieve the build version of the plughost CLI",
		Long: fmt.Sprintf(`The version command retrieves the build version of the plughost CLI.

The default format %[1]q splits a semantic version into its components and
derives "buildDate" and "gitCommit" from the prerelease part, the way go
module pseudo-versions encode them.

When the format is set to %[2]q, the Go build information is printed as a
string. The format is standardized and unified across all golang
applications. %[3]q is the same information in JSON.

The build info by default is drawn from the go module build information,
which is set at build time of the CLI. When officially built, it is
possibly overwritten with the released version of the CLI.`, FlagFormatJSON, FlagFormatGoBuildInfo, FlagFormatGoBuildInfoJSON),
		Example: fmt.Sprintf(`plughost version --format %s`, FlagFormatGoBuildInfo),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := enum.Get(cmd.Flags(), FlagFormat)
			if err != nil {
				return err
			}
			ver, ok := debug.ReadBuildInfo()
			if !ok {
				return fmt.Errorf("no build info available")
			}
			if BuildVersion != "n/a" {
				ver.Main.Version = BuildVersion
			}
			switch format {
			case FlagFormatJSON:
				return json.NewEncoder(cmd.OutOrStdout()).Encode(describe(ver))
			case FlagFormatGoBuildInfo:
				_, err = io.Copy(cmd.OutOrStdout(), strings.NewReader(ver.String()))
				return err
			case FlagFormatGoBuildInfoJSON:
				return json.NewEncoder(cmd.OutOrStdout()).Encode(ver)
			default:
				return cmd.Help()
			}
		},
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	enum.VarP(cmd.Flags(), FlagFormat, FlagFormatShortHand,
		[]string{FlagFormatJSON, FlagFormatGoBuildInfo, FlagFormatGoBuildInfoJSON},
		"format of the version report")
	return cmd
}
