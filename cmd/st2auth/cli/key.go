package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pimguilherme/st2/internal/model"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, import, list, and revoke the API keys used to authenticate against the st2auth API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyImportCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyEnableCmd(true))
	cmd.AddCommand(newKeyEnableCmd(false))
	cmd.AddCommand(newKeyDeleteCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key for a user. The raw key is shown once and cannot be retrieved again; only its hash is stored.",
		Example: `  st2auth key create --user ci-bot
  st2auth key create --user alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(user)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User the key belongs to (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyCreate(user string) error {
	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	rawKey, key, err := auth.CreateAPIKey(context.Background(), user, nil)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key:  %s\n", rawKey)
	fmt.Printf("  User: %s\n", key.User)
	fmt.Printf("  ID:   %d\n", key.ID)
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key import ----------

func newKeyImportCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an externally generated API key",
		Long:  "Read a raw API key from the terminal without echo and store its hash. Use when the key material is minted by another system.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyImport(user)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User the key belongs to (required)")
	cmd.MarkFlagRequired("user")

	return cmd
}

func runKeyImport(user string) error {
	fmt.Print("Raw API key (input hidden): ")
	rawKey, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}

	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	key, err := auth.ImportAPIKey(context.Background(), user, string(rawKey), nil)
	if err != nil {
		return fmt.Errorf("import api key: %w", err)
	}

	fmt.Printf("Imported API key for %q (id %d). Only the hash was stored.\n", key.User, key.ID)
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		user       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(user, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Only show keys for this user")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(user string, jsonOutput bool) error {
	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := auth.ListAPIKeys(context.Background(), user)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		// Masked exports only: hashes and uids never leave the store.
		exports := make([]model.Export, len(keys))
		for i, k := range keys {
			exports[i] = k.MaskSecrets(k.Export())
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exports)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys. Use 'st2auth key create' to create one.")
		return nil
	}

	fmt.Printf("%-8s %-24s %-26s %-8s\n", "ID", "USER", "CREATED", "ENABLED")
	fmt.Printf("%-8s %-24s %-26s %-8s\n", "--", "----", "-------", "-------")
	for _, k := range keys {
		enabled := "yes"
		if !k.Enabled {
			enabled = "no"
		}
		fmt.Printf("%-8d %-24s %-26s %-8s\n", k.ID, k.User, k.CreatedAt.Format("2006-01-02 15:04:05"), enabled)
	}
	return nil
}

// ---------- key enable / disable ----------

func newKeyEnableCmd(enable bool) *cobra.Command {
	use, short := "disable <id>", "Disable an API key, keeping its record"
	if enable {
		use, short = "enable <id>", "Re-enable a disabled API key"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeySetEnabled(args[0], enable)
		},
	}

	return cmd
}

func runKeySetEnabled(idArg string, enabled bool) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key id %q", idArg)
	}

	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := auth.SetAPIKeyEnabled(context.Background(), id, enabled); err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("API key %d %s.\n", id, state)
	return nil
}

// ---------- key delete ----------

func newKeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyDelete(args[0])
		},
	}

	return cmd
}

func runKeyDelete(idArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key id %q", idArg)
	}

	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := auth.DeleteAPIKey(context.Background(), id); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	fmt.Printf("Deleted API key %d.\n", id)
	return nil
}
