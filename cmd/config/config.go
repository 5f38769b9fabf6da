// Package config provides commands that write configuration files
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kent2980/aoi-data-manager/internal/conf"
	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// Command creates and returns the config command
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create configuration files",
	}
	cmd.AddCommand(initCommand(), kintoneCommand())
	return cmd
}

func initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init PATH",
		Short: "Write the default config.yaml to PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.WriteDefaultConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Created default config file at:", args[0])
			return nil
		},
	}
}

func kintoneCommand() *cobra.Command {
	var k conf.KintoneSettings

	cmd := &cobra.Command{
		Use:   "kintone PATH",
		Short: "Write a kintone settings file referenced by kintone.settingsfile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if k.Subdomain == "" || k.AppID <= 0 || k.APIToken == "" {
				return errors.ValidationError("--subdomain, --app-id and --token are required")
			}
			if err := conf.SaveKintoneFile(args[0], k); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved kintone settings to:", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&k.Subdomain, "subdomain", "", "kintone subdomain")
	cmd.Flags().IntVar(&k.AppID, "app-id", 0, "kintone app id")
	cmd.Flags().StringVar(&k.APIToken, "token", "", "kintone API token")
	cmd.Flags().StringVar(&k.ImageField, "image-field", "", "Attachment field for board images")

	return cmd
}
