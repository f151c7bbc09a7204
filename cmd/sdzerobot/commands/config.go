package commands

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/errors"
)

// ConfigCmd manages the configuration file
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Write or show the configuration",
	Long: `Write or show the configuration.

Configuration sources (in order of precedence):
1. Environment variables (SDZEROBOT_* prefix; credentials also from
   SDZEROBOT_WIKI_PASSWORD and TOOL_REPLICA_USER/TOOL_REPLICA_PASSWORD)
2. Project config (./sdzerobot.toml, searched upwards)
3. User config (~/.sdzerobot/config.toml)
4. System config (/etc/sdzerobot/config.toml)
5. Default values

Examples:
  sdzerobot config init            # write ~/.sdzerobot/config.toml
  sdzerobot config show            # show the effective configuration
  sdzerobot config show --format json`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default values",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration without credentials",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var (
	configForce  bool
	configFormat string
)

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json")

	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.UserConfigPath()
	if len(args) == 1 {
		path = config.ExpandHome(args[0])
	}
	if path == "" {
		return errors.New("cannot determine the home directory; pass a path")
	}
	if err := config.WriteDefault(path, configForce); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	switch configFormat {
	case "toml":
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# sdzerobot configuration\n%s", data)
	case "json":
		redacted := *cfg
		redacted.Wiki.Password = ""
		redacted.Replica.Password = ""
		data, err := json.MarshalIndent(redacted, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Println(string(data))
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json)", configFormat)
	}
	return nil
}
