package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shopping-assistant/internal/config"
	"shopping-assistant/internal/domain"
	"shopping-assistant/internal/usecase"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Run one assistant turn",
		Long:  "Send a message to the assistant and print the response, actions and trace",
		Example: `
# Start a new session
shopctl chat --user u1 find organic apples

# Continue it
shopctl chat --user u1 --session 3f2c... add those to my list
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			sessionID, _ := cmd.Flags().GetString("session")
			profilePath, _ := cmd.Flags().GetString("profile")
			asJSON, _ := cmd.Flags().GetBool("json")
			verbose, _ := cmd.Flags().GetBool("verbose")

			profile, err := readProfile(profilePath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(config.CLI)
			if err != nil {
				return err
			}
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Backend.Close()

			out, err := a.Chat.Chat(cmd.Context(), usecase.ChatInput{
				Message:   strings.Join(args, " "),
				UserID:    userID,
				SessionID: sessionID,
				Profile:   profile,
			})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			printTurn(cmd.OutOrStdout(), out, verbose)
			return nil
		},
	}
	cmd.Flags().StringP("user", "u", "", "User id")
	cmd.Flags().StringP("session", "s", "", "Session id to continue; a new one is created when empty")
	cmd.Flags().String("profile", "", "JSON file with the user profile")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func readProfile(path string) (*domain.Profile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}

func printTurn(w io.Writer, out usecase.ChatOutput, verbose bool) {
	fmt.Fprintln(w, out.Response)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Session: %s\n", out.SessionID)
	fmt.Fprintf(w, "Intent:  %s\n", out.Intent)
	if !out.Success {
		fmt.Fprintf(w, "Error:   %s\n", out.Error)
	}

	if len(out.Products) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Products:")
		for _, p := range out.Products {
			fmt.Fprintf(w, "  %-10s %-40s $%.2f\n", p.ID, p.Name, p.Price)
		}
	}
	if len(out.Actions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Actions:")
		for _, a := range out.Actions {
			fmt.Fprintf(w, "  - %s\n", a)
		}
	}
	if verbose && len(out.Trace) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Trace:")
		for _, t := range out.Trace {
			fmt.Fprintf(w, "  %s\n", t)
		}
	}
}
