package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Doesntmeananything/sashay/internal/auth"
	"github.com/Doesntmeananything/sashay/internal/config"
	"github.com/Doesntmeananything/sashay/internal/store/postgres"
	"github.com/Doesntmeananything/sashay/internal/ui"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Provision a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			var err error
			password, err = ui.PromptPassword("Password: ")
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password must not be empty")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		gate := auth.New(store)
		user, err := gate.CreateUser(context.Background(), username, password)
		if err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		fmt.Printf("Created user %s (%s)\n", user.Username, user.ID)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Provision the development users",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := auth.New(store).Seed(context.Background()); err != nil {
			return err
		}
		fmt.Println("Seeded development users")
		return nil
	},
}

func init() {
	userAddCmd.Flags().String("password", "", "password (prompted when omitted)")
	userCmd.AddCommand(userAddCmd)
}
