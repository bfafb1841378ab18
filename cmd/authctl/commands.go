package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"identity-service/internal/model"
	"identity-service/internal/service"
)

func newSetRoleCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <user|admin>",
		Short: "Change the role of an existing account",
		Long: `Set the role stored on an account. This is the only way to grant admin;
registration always creates plain users. Existing sessions keep their old
role until they expire.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := model.NormalizeEmail(args[0])
			role := strings.ToLower(strings.TrimSpace(args[1]))
			if role != model.RoleUser && role != model.RoleAdmin {
				return fmt.Errorf("role must be %q or %q, got %q", model.RoleUser, model.RoleAdmin, args[1])
			}

			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}

			accounts, closeAccounts, err := d.openAccounts(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeAccounts()

			acct, err := accounts.FindByEmail(cmd.Context(), email)
			if errors.Is(err, model.ErrAccountNotFound) {
				return fmt.Errorf("no account registered for %s", email)
			}
			if err != nil {
				return err
			}

			if acct.Role == role {
				cmd.Printf("%s already has role %s\n", email, role)
				return nil
			}

			if err := accounts.Update(cmd.Context(), acct.ID, model.AccountPatch{Role: &role}); err != nil {
				return fmt.Errorf("update role: %w", err)
			}

			cmd.Printf("%s: %s -> %s\n", email, acct.Role, role)
			return nil
		},
	}
}

func newHashPasswordCmd(d deps) *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for a password read from stdin",
		Long: `Read a password without echo from the terminal, or the first line of
stdin when it is not a terminal, and print its bcrypt hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readSecret(cmd, d)
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}

			hash, err := service.NewPasswordHasher(cost).Hash(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			cmd.Println(hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost factor")
	return cmd
}

func readSecret(cmd *cobra.Command, d deps) (string, error) {
	fd := stdinFd()
	if d.isTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		raw, err := d.readPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newDecodeTokenCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "decode-token <token>",
		Short: "Verify a session token with SECRET_KEY and print its identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}

			codec, err := service.NewTokenCodec(cfg.SecretKey, cfg.Algorithm, cfg.TokenTTL)
			if err != nil {
				return err
			}

			identity, err := codec.Verify(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(identity)
		},
	}
}
