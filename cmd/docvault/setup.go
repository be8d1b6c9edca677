package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/docvault/internal/config"
	"github.com/TheMichaelB/docvault/internal/vault"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new vault",
	Long: `Init creates the vault directory and protects it with a 4-8 digit PIN.
The PIN cannot be recovered; losing it loses the vault.`,
	Example: `  docvault init
  DOCVAULT_NEW_PIN=1234 docvault init --data-dir ~/vault`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var changePINCmd = &cobra.Command{
	Use:   "change-pin",
	Short: "Change the vault PIN",
	Long:  `Change-pin re-encrypts every document and the vault store under a key derived from the new PIN.`,
	Example: `  docvault change-pin
  DOCVAULT_PIN=1234 DOCVAULT_NEW_PIN=5678 docvault change-pin`,
	Args: cobra.NoArgs,
	RunE: runChangePIN,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configExampleCmd = &cobra.Command{
	Use:   "example <path>",
	Short: "Write an example config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveExample(args[0]); err != nil {
			return report(err)
		}
		printSuccess("Wrote %s", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printJSON(cfg)
	},
}

func init() {
	rootCmd.AddCommand(initCmd, changePINCmd, configCmd)
	configCmd.AddCommand(configExampleCmd, configShowCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	v, err := vault.New(cfg, logger)
	if err != nil {
		return report(err)
	}
	defer v.Close()

	if v.IsInitialized() {
		return report(fmt.Errorf("a vault already exists in %s", cfg.Storage.DataDir))
	}

	pin, err := newPIN("Choose a PIN: ", newPINEnv, pinEnv)
	if err != nil {
		return report(err)
	}
	if err := v.Create(cmd.Context(), pin); err != nil {
		return report(err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":  true,
			"data_dir": cfg.Storage.DataDir,
		})
	} else {
		printSuccess("Vault created in %s", cfg.Storage.DataDir)
	}
	return nil
}

func runChangePIN(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	oldPIN, err := readPIN("Current PIN: ")
	if err != nil {
		return report(err)
	}
	v, err := unlockWith(ctx, oldPIN)
	if err != nil {
		return report(err)
	}
	defer v.Close()

	pin, err := newPIN("New PIN: ", newPINEnv)
	if err != nil {
		return report(err)
	}
	if err := v.ChangePIN(ctx, oldPIN, pin); err != nil {
		return report(err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true})
	} else {
		printSuccess("PIN changed")
	}
	return nil
}
