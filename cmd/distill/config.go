package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/distill/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a default config file to ~/.distill/config.yaml.

The generated file references API keys as ${ENV_VAR} placeholders so
secrets stay out of the file itself. Edit the file and set
OPENROUTER_API_KEY in your environment (or a .env file) before serving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}

		path := h.ConfigPath()
		if h.ConfigExists() {
			return fmt.Errorf("config already exists at %s", path)
		}

		if err := config.WriteDefault(path); err != nil {
			return err
		}

		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
