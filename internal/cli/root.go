package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "crashes v0.4.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crashes",
	Short: "Crashes - bicycle collision dataset from police crash reports",
	Long: `Crashes turns a directory of police crash report documents into a
structured, hand-curated dataset of bicycle collisions.

  parse     extract records from new documents into reports.json
  curate    classify candidate reports that mention a bicycle
  geocode   place bicycle-involved crashes on the map
  status    list what still needs an operator
  export    write the dataset as a workbook or SQLite database

Every command is safe to re-run: work that is already done is skipped.`,
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
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.crashes/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.String("data-dir", "", "directory holding reports.json, curation.json and locations.json")
	flags.String("docs-dir", "", "directory of crash report documents")
	flags.String("layers-dir", "", "directory for the GeoJSON map layers")
	flags.String("log-format", "", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("paths.data", flags.Lookup("data-dir"))
	_ = viper.BindPFlag("paths.documents", flags.Lookup("docs-dir"))
	_ = viper.BindPFlag("paths.layers", flags.Lookup("layers-dir"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))

	if err := registerDefaults(viper.GetViper()); err != nil {
		panic(err)
	}

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in .env, the config file and ENV variables
func initConfig() {
	// API keys usually live in .env next to the data
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) && verbose {
		fmt.Fprintf(os.Stderr, "Ignoring .env: %v\n", err)
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.crashes")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CRASHES_*
	viper.SetEnvPrefix("CRASHES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	} else if err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
	}
}
