package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolscope/internal/config"
	"github.com/ppiankov/toolscope/internal/systemd"
)

var (
	initForce          bool
	initSystemd        bool
	initSystemdInstall bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().BoolVar(&initSystemd, "systemd", false, "Print a systemd unit for the shipper daemon")
	initCmd.Flags().BoolVar(&initSystemdInstall, "systemd-install", false, "Install the shipper unit file and record its integrity baseline (requires root)")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if initSystemd || initSystemdInstall {
		bin, err := os.Executable()
		if err != nil {
			bin = "/usr/local/bin/toolscope"
		}
		if initSystemdInstall {
			path, err := systemd.Install(bin, cfgPath, config.DefaultDir())
			if err != nil {
				return err
			}
			fmt.Printf("installed %s\nrun: systemctl daemon-reload && systemctl enable --now %s\n", path, systemd.UnitName)
			return nil
		}
		fmt.Print(systemd.Template(bin, cfgPath))
		return nil
	}

	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
	}

	if err := config.Default().Write(cfgPath); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", cfgPath)
	return nil
}
