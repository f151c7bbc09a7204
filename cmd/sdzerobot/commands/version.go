package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display version, build time, commit hash, and platform information for the sdzerobot binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()

		if versionJSON {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal version info")
			}
			fmt.Println(string(output))
			return nil
		}

		fmt.Println(info.String())
		return pterm.DefaultTable.WithData(pterm.TableData{
			{"Platform", info.Platform},
			{"Go", info.GoVersion},
		}).Render()
	},
}

var versionJSON bool

func init() {
	VersionCmd.Flags().BoolVarP(&versionJSON, "json", "j", false, "Output version info as JSON")
}
