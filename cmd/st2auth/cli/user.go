package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pimguilherme/st2/internal/model"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Create, list, and inspect the users credentials are issued to.",
	}

	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserRolesCmd())
	cmd.AddCommand(newUserDeleteCmd())

	return cmd
}

// ---------- user add ----------

func newUserAddCmd() *cobra.Command {
	var isService bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a user",
		Example: `  st2auth user add alice
  st2auth user add monitoring-bot --service`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAdd(args[0], isService)
		},
	}

	cmd.Flags().BoolVar(&isService, "service", false, "Mark the user as a service account")

	return cmd
}

func runUserAdd(name string, isService bool) error {
	_, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	user, err := model.NewUser(name)
	if err != nil {
		return err
	}
	user.IsService = isService

	if err := st.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created user %q (id %d)\n", user.Name, user.ID)
	return nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
	_, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if jsonOutput {
		exports := make([]model.Export, len(users))
		for i, u := range users {
			exports[i] = u.MaskSecrets(u.Export())
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exports)
	}

	if len(users) == 0 {
		fmt.Println("No users. Use 'st2auth user add' to create one.")
		return nil
	}

	fmt.Printf("%-8s %-32s %-8s\n", "ID", "NAME", "SERVICE")
	fmt.Printf("%-8s %-32s %-8s\n", "--", "----", "-------")
	for _, u := range users {
		service := "no"
		if u.IsService {
			service = "yes"
		}
		fmt.Printf("%-8d %-32s %-8s\n", u.ID, u.Name, service)
	}
	return nil
}

// ---------- user roles ----------

func newUserRolesCmd() *cobra.Command {
	var includeRemote bool

	cmd := &cobra.Command{
		Use:   "roles <name>",
		Short: "Resolve a user's roles through the configured RBAC backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserRoles(args[0], includeRemote)
		},
	}

	cmd.Flags().BoolVar(&includeRemote, "remote", false, "Include remotely synced role assignments")

	return cmd
}

func runUserRoles(name string, includeRemote bool) error {
	auth, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	user, err := auth.GetUser(ctx, name)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	roles, err := user.GetRoles(ctx, includeRemote)
	if err != nil {
		return fmt.Errorf("resolve roles: %w", err)
	}

	if len(roles) == 0 {
		fmt.Printf("User %q has no roles.\n", name)
		return nil
	}
	for _, r := range roles {
		if r.Description != "" {
			fmt.Printf("%s - %s\n", r.Name, r.Description)
		} else {
			fmt.Println(r.Name)
		}
	}
	return nil
}

// ---------- user delete ----------

func newUserDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a user",
		Long:  "Remove a user record. Tokens and API keys issued to the name are not revoked; revoke them separately.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserDelete(args[0])
		},
	}

	return cmd
}

func runUserDelete(name string) error {
	_, st, err := openAuth()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteUser(context.Background(), name); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	fmt.Printf("Deleted user %q\n", name)
	return nil
}
