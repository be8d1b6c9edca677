package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/docvault/internal/config"
	"github.com/TheMichaelB/docvault/internal/events"
	"github.com/TheMichaelB/docvault/internal/models"
	"github.com/TheMichaelB/docvault/internal/vault"
)

// Environment variables that supply PINs non-interactively.
const (
	pinEnv    = "DOCVAULT_PIN"
	newPINEnv = "DOCVAULT_NEW_PIN"
)

var (
	configFile string
	dataDir    string
	logLevel   string
	jsonOutput bool

	cfg    *config.Config
	logger *events.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docvault",
	Short: "Encrypted personal document vault",
	Long: `docvault keeps scanned documents, notes and quick chat messages in a
local vault encrypted under a key derived from your PIN.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Config file (default: ./docvault.yaml or ~/.config/docvault/docvault.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "",
		"Vault directory (overrides storage.data_dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Print machine-readable JSON")
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.NewLoader(configFile).Load()
	if err != nil {
		return err
	}
	if dataDir != "" {
		loaded.SetDataDir(dataDir)
	}
	if logLevel != "" {
		loaded.Log.Level = strings.ToLower(logLevel)
		if err := loaded.Validate(); err != nil {
			return err
		}
	}
	cfg = loaded

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}
	events.SetDefault(logger)
	return nil
}

// run adapts a command body that needs an unlocked vault. Errors are printed
// once here.
func run(fn func(ctx context.Context, v *vault.Vault, svc *vault.Services, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		v, err := unlock(ctx)
		if err != nil {
			return report(err)
		}
		defer v.Close()

		svc, err := v.Services()
		if err != nil {
			return report(err)
		}
		return report(fn(ctx, v, svc, args))
	}
}

func unlock(ctx context.Context) (*vault.Vault, error) {
	pin, err := readPIN("PIN: ")
	if err != nil {
		return nil, err
	}
	return unlockWith(ctx, pin)
}

func unlockWith(ctx context.Context, pin string) (*vault.Vault, error) {
	v, err := vault.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if !v.IsInitialized() {
		return nil, fmt.Errorf("no vault in %s, run 'docvault init' first", cfg.Storage.DataDir)
	}
	if err := v.Unlock(ctx, pin); err != nil {
		return nil, err
	}
	return v, nil
}

// reported marks an error already shown to the user.
type reported struct{ error }

func (r reported) Unwrap() error { return r.error }

func report(err error) error {
	if err == nil {
		return nil
	}
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return reported{err}
	}

	var pipeline *models.PipelineError
	var partial *models.PartialDeleteError
	switch {
	case errors.Is(err, models.ErrAuthentication):
		printError("Wrong PIN")
	case errors.As(err, &pipeline) && pipeline.OrphanedBlob != "":
		printError("%v", err)
		printInfo("Run 'docvault reconcile --repair' to remove the leftover blob")
	case errors.As(err, &partial):
		printWarning("%v", err)
	default:
		printError("%v", err)
	}
	return reported{err}
}

// readPIN takes the PIN from DOCVAULT_PIN or prompts without echo.
func readPIN(prompt string) (string, error) {
	if pin := os.Getenv(pinEnv); pin != "" {
		return pin, nil
	}
	return promptPIN(prompt)
}

// newPIN takes a new PIN from the first set variable in envs or prompts
// twice.
func newPIN(prompt string, envs ...string) (string, error) {
	for _, env := range envs {
		if pin := os.Getenv(env); pin != "" {
			return pin, nil
		}
	}

	first, err := promptPIN(prompt)
	if err != nil {
		return "", err
	}
	second, err := promptPIN("Repeat: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", &models.ValidationError{Field: "pin", Reason: "entries do not match"}
	}
	return first, nil
}

func promptPIN(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pin, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read PIN: %w", err)
	}
	return string(pin), nil
}
