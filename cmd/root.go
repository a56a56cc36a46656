package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/voicerec/cmd/configcmd"
	"github.com/tphakala/voicerec/cmd/devices"
	"github.com/tphakala/voicerec/cmd/record"
	"github.com/tphakala/voicerec/cmd/version"
	"github.com/tphakala/voicerec/internal/buildinfo"
)

// RootCommand creates and returns the root command
func RootCommand(info *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "voicerec",
		Short:         "Continuous audio recorder with fixed and voice-triggered segmentation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: search ., ~/.config/voicerec, /etc/voicerec)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	rootCmd.AddCommand(
		record.Command(info),
		devices.Command(),
		configcmd.Command(),
		version.Command(info),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// An explicit file disables the search path lookup in conf.Load
		if configFile != "" {
			viper.SetConfigFile(configFile)
		}
		return nil
	}

	return rootCmd
}
