package cmd

import (
	"fmt"
	"github.com/ValentinKolb/serdata/cmd/perf"
	"github.com/ValentinKolb/serdata/cmd/sample"
	"github.com/ValentinKolb/serdata/cmd/types"
	"github.com/ValentinKolb/serdata/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "serdata",
		Short: "serialized sample toolkit",
		Long: fmt.Sprintf(`serdata (v%s)

Tooling around a reference counted serialized sample core for DDS style
publish/subscribe: inspect type layouts, encode and decode samples, and
measure the cost of the sample lifecycle.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of serdata",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("serdata v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(types.TypeCommands)
	RootCmd.AddCommand(sample.SampleCommands)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	util.SetupTypeFlags(RootCmd)
}

// setup binds the flags of the executed command and initializes the loggers
func setup(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return util.InitLoggers(viper.GetString("log-level"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
