package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ragtune/src/log"
)

const defaultConfigFile = "./ragtune.yaml"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ragtune",
	Short: "Sweep RAG hyperparameters and score them with an LLM judge",
	Long: `ragtune builds a retrieval-augmented generation pipeline over a document
corpus once per hyperparameter preset, answers a benchmark of questions with
each one and scores the answers with faithfulness, answer relevancy, context
precision and context recall. The averaged results are printed as a table.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := log.Setup(verbose); err != nil {
			return fmt.Errorf("failed to set up logger: %w", err)
		}
		return loadConfigFile()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigFile, "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	settingDefaultConfig()
}

// loadConfigFile reads the config file. A missing default file is not an error.
func loadConfigFile() error {
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		if cfgFile == defaultConfigFile && errors.Is(err, os.ErrNotExist) {
			log.Debug("no config file found, using defaults", "path", cfgFile)
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
	}
	log.Debug("config file loaded", "path", viper.ConfigFileUsed())
	return nil
}
