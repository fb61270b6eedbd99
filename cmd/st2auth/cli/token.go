package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
		Long:  "Issue, list, revoke, and garbage-collect the opaque bearer tokens used to authenticate API requests.",
	}

	cmd.AddCommand(newTokenIssueCmd())
	cmd.AddCommand(newTokenListCmd())
	cmd.AddCommand(newTokenRevokeCmd())
	cmd.AddCommand(newTokenPurgeCmd())

	return cmd
}

// ---------- token issue ----------

func newTokenIssueCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue <user>",
		Short: "Issue a token for a user",
		Long:  "Mint a new bearer token. The token value is printed once; afterwards only its record is visible.",
		Example: `  st2auth token issue alice
  st2auth token issue ci-bot --ttl 96h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(args[0], ttl)
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default from configuration)")

	return cmd
}

func runTokenIssue(user string, ttl time.Duration) error {
	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	token, err := auth.IssueToken(context.Background(), user, ttl, nil)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println("Token issued:")
	fmt.Println()
	fmt.Printf("  Token:  %s\n", token.Token)
	fmt.Printf("  User:   %s\n", token.User)
	fmt.Printf("  Expiry: %s\n", token.Expiry.Format(time.RFC3339))
	return nil
}

// ---------- token list ----------

func newTokenListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list <user>",
		Aliases: []string{"ls"},
		Short:   "List a user's tokens",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenList(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runTokenList(user string, jsonOutput bool) error {
	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	tokens, err := auth.ListTokens(context.Background(), user)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		exports := make([]any, len(tokens))
		for i, tok := range tokens {
			exports[i] = tok.MaskSecrets(tok.Export())
		}
		return enc.Encode(exports)
	}

	if len(tokens) == 0 {
		fmt.Printf("No tokens for user %q.\n", user)
		return nil
	}

	fmt.Printf("%-8s %-20s %-26s %-8s\n", "ID", "TOKEN", "EXPIRY", "EXPIRED")
	fmt.Printf("%-8s %-20s %-26s %-8s\n", "--", "-----", "------", "-------")
	for _, tok := range tokens {
		expired := "no"
		if tok.IsExpired() {
			expired = "yes"
		}
		// Show only a prefix of the value.
		display := tok.Token
		if len(display) > 16 {
			display = display[:16] + "..."
		}
		fmt.Printf("%-8d %-20s %-26s %-8s\n", tok.ID, display, tok.Expiry.Format(time.RFC3339), expired)
	}
	return nil
}

// ---------- token revoke ----------

func newTokenRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a token by its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenRevoke(args[0])
		},
	}

	return cmd
}

func runTokenRevoke(value string) error {
	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := auth.RevokeToken(context.Background(), value); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	fmt.Println("Token revoked.")
	return nil
}

// ---------- token purge ----------

func newTokenPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Garbage-collect expired tokens and stale SSO requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenPurge()
		},
	}

	return cmd
}

func runTokenPurge() error {
	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	tokens, ssoRequests, err := auth.PurgeExpired(context.Background())
	if err != nil {
		return fmt.Errorf("purge expired: %w", err)
	}
	fmt.Printf("Purged %d expired tokens and %d stale SSO requests.\n", tokens, ssoRequests)
	return nil
}
