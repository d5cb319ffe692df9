package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/keystone-admin/keystone/internal/app"
	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/token"
)

var (
	stdinFlag   bool
	subjectFlag string
	ttlFlag     time.Duration
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [secret]",
	Short: "Print the bcrypt hash of a secret",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret(cmd, args)
		if err != nil {
			return err
		}
		hash, err := auth.HashSecret(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Sign a bearer token for a user id with the configured secret",
	Long: `Issue-token signs a token without checking that the user exists or is
active. The gate still rejects tokens for unknown or inactive users.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, err := uuid.Parse(subjectFlag)
		if err != nil {
			return fmt.Errorf("--user must be a UUID: %w", err)
		}
		cfg, err := app.LoadConfig(envFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		codec, err := token.NewCodec(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return err
		}
		now := time.Now()
		raw, err := codec.Issue(subject, now, ttlFlag)
		if err != nil {
			return err
		}
		claims, err := codec.Decode(raw, now)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, raw)
		fmt.Fprintf(out, "expires_at: %s\n", claims.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	hashPasswordCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "read the secret from stdin")
	issueTokenCmd.Flags().StringVar(&subjectFlag, "user", "", "user id to put in the sub claim")
	issueTokenCmd.Flags().DurationVar(&ttlFlag, "ttl", 0, "token lifetime (default TOKEN_TTL)")
	_ = issueTokenCmd.MarkFlagRequired("user")
}

func readSecret(cmd *cobra.Command, args []string) (string, error) {
	if stdinFlag {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		if scanner.Scan() {
			return strings.TrimRight(scanner.Text(), "\r\n"), nil
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return "", errors.New("no secret on stdin")
	}
	if len(args) == 0 {
		return "", errors.New("secret required (argument or --stdin)")
	}
	return args[0], nil
}
