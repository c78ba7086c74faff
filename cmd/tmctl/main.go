package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "tonminer/internal/cli"
	"tonminer/internal/config"

	"github.com/spf13/cobra"
)

type globals struct {
	apiBase string
	userID  string
}

func main() {
	cfg := config.LoadCLIFromEnv()
	g := &globals{apiBase: cfg.APIBaseURL}

	root := &cobra.Command{
		Use:          "tmctl",
		Short:        "TON Miner command line client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.apiBase, "api", g.apiBase, "API base URL")
	root.PersistentFlags().StringVarP(&g.userID, "user", "u", "", "act as this user id instead of the saved profile")

	root.AddCommand(
		newUseCmd(),
		newForgetCmd(),
		newStateCmd(g),
		newBuyCmd(g),
		newUpgradeCmd(g),
		newCatalogCmd(g),
		newLeaderboardCmd(g),
		newHistoryCmd(g),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", describeError(err)))
		os.Exit(1)
	}
}

func newClient(g *globals) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(g.apiBase), "/"))
}

func (g *globals) player() (string, error) {
	if id := strings.TrimSpace(g.userID); id != "" {
		return id, nil
	}
	p, err := cl.LoadProfile()
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use [userId]",
		Short: "Save the player id tmctl acts as",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var userID string
			if len(args) > 0 {
				userID = args[0]
			} else {
				var err error
				if userID, err = promptRequired("User id"); err != nil {
					return err
				}
			}
			if err := cl.SaveProfile(cl.Profile{UserID: userID}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Now playing as %s.", strings.TrimSpace(userID)))
			return nil
		},
	}
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Clear the saved player id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearProfile(); err != nil {
				return err
			}
			printSuccess("Profile cleared.")
			return nil
		},
	}
}

func newStateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "state",
		Short:   "Show balance, income and owned characters",
		Aliases: []string{"dash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := g.player()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(g).GameState(ctx, userID)
			if err != nil {
				return err
			}
			return renderState(out.Player, out.Config)
		},
	}
}

func newBuyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [characterId]",
		Short: "Buy a character",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transactionCommand(cmd, g, args, "buy")
		},
	}
}

func newUpgradeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade [characterId]",
		Short: "Upgrade an owned character by one level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transactionCommand(cmd, g, args, "upgrade")
		},
	}
}

func transactionCommand(cmd *cobra.Command, g *globals, args []string, action string) error {
	userID, err := g.player()
	if err != nil {
		return err
	}
	characterID, err := intFromArgOrPrompt(args, 0, "Character id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	client := newClient(g)

	var out cl.TransactionResponse
	if action == "buy" {
		out, err = client.BuyCharacter(ctx, userID, characterID)
	} else {
		out, err = client.UpgradeCharacter(ctx, userID, characterID)
	}
	if err != nil {
		return err
	}
	printSuccess(out.Message)
	fmt.Printf("Balance: %s TON\n", formatTON(out.Player.Balance))
	return nil
}

func newCatalogCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "catalog",
		Short:   "List characters and upgrade costs",
		Aliases: []string{"shop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			spec, err := newClient(g).Config(ctx)
			if err != nil {
				return err
			}
			return renderCatalog(spec)
		},
	}
}

func newLeaderboardCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "leaderboard",
		Short:   "Show the richest miners",
		Aliases: []string{"top"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(g).Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			return renderLeaderboard(rows)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of rows")
	return cmd
}

func newHistoryCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show your recent purchases and upgrades",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := g.player()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			entries, err := newClient(g).History(ctx, userID, limit)
			if err != nil {
				return err
			}
			return renderHistory(entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func describeError(err error) error {
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Message)
	}
	return err
}

func intFromArgOrPrompt(args []string, idx int, label string) (int, error) {
	if len(args) > idx {
		v, err := strconv.Atoi(strings.TrimSpace(args[idx]))
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid %s", strings.ToLower(label))
		}
		return v, nil
	}
	return promptInt(label, 1)
}
