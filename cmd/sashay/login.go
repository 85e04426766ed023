package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Doesntmeananything/sashay/internal/client"
	"github.com/Doesntmeananything/sashay/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Log in and save the session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var username string
		if len(args) == 1 {
			username = args[0]
		} else {
			fmt.Fprint(os.Stderr, "Username: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading username: %w", err)
			}
			username = strings.TrimSpace(line)
		}
		if username == "" {
			return fmt.Errorf("username is required")
		}

		password, err := ui.PromptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}

		api := client.NewHTTPClient(serverURL, "")
		result, err := api.Login(context.Background(), username, password)
		if err != nil {
			return err
		}

		if err := saveProfile(Profile{
			Server:    serverURL,
			SessionID: result.SessionID,
			Username:  result.User.Username,
		}); err != nil {
			return fmt.Errorf("saving profile: %w", err)
		}

		fmt.Printf("Logged in as %s\n", result.User.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		p.SessionID = ""
		p.Username = ""
		if err := saveProfile(p); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		api := newAPIClient()
		user, err := api.Me(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", user.Username, user.ID)
		return nil
	},
}
