package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time
var Version = "0.3.0"

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool

	storeDriver string
	storeDSN    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "signalwatch",
	Short: "Signalwatch - multi-source event ingestion and correlation",
	Long: `Signalwatch polls oversight reports, legislative records, press feeds,
news wires and court opinions for events in a monitored domain.

Each event is quality-gated, deduplicated across sources, checked against
an escalation signal library, and stored once. A correlation pass then
looks for compound signals that only appear when sources are read together.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "signalwatch v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.signalwatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store", "", "store driver (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "dsn", "", "store data source name")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.signalwatch")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// SIGNALWATCH_STORE_DSN overrides store.dsn, and so on
	viper.SetEnvPrefix("SIGNALWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("ml.api_key", "SIGNALWATCH_ML_API_KEY", "OPENAI_API_KEY")
	for _, key := range []string{"store.driver", "store.dsn", "log.level", "log.format", "metrics.addr", "ml.provider", "ml.model", "ml.base_url"} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}
