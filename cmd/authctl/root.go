package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"identity-service/internal/app"
	"identity-service/internal/config"
	"identity-service/internal/logger"
	"identity-service/internal/service"
)

// deps are the seams the commands reach the outside world through.
type deps struct {
	loadConfig   func() (*config.Config, error)
	openAccounts func(ctx context.Context, cfg *config.Config) (service.AccountStore, func(), error)
	readPassword func(fd int) ([]byte, error)
	isTerminal   func(fd int) bool
}

func defaultDeps() deps {
	return deps{
		loadConfig:   config.Load,
		openAccounts: app.OpenAccountStore,
		readPassword: term.ReadPassword,
		isTerminal:   term.IsTerminal,
	}
}

// NewRootCmd creates the operator CLI for the identity service.
func NewRootCmd(d deps) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operator tooling for the identity service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			slog.SetDefault(slog.New(logger.New(cmd.ErrOrStderr(), "pretty", level)))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log store connections and progress")

	cmd.AddCommand(newSetRoleCmd(d))
	cmd.AddCommand(newHashPasswordCmd(d))
	cmd.AddCommand(newDecodeTokenCmd(d))

	return cmd
}

func stdinFd() int {
	return int(os.Stdin.Fd())
}
