package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"tonminer/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptInt(label string, minVal int) (int, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < minVal {
			printWarn(fmt.Sprintf("Value must be >= %d", minVal))
			continue
		}
		return v, nil
	}
}

func renderState(p game.PlayerRecord, spec game.CatalogSpec) error {
	catalog, err := game.NewCatalog(spec)
	if err != nil {
		return fmt.Errorf("server sent an invalid catalog: %w", err)
	}
	accent.Printf("\n== MINER %s ==\n", p.UserID)
	fmt.Printf("Balance:      %s TON\n", success.Sprint(formatTON(p.Balance)))
	fmt.Printf("Daily income: %s TON/day\n\n", formatTON(catalog.TotalDailyIncome(p)))

	fmt.Printf("%-4s %-18s %-6s %14s %14s\n", "ID", "CHARACTER", "LEVEL", "INCOME/DAY", "NEXT UPGRADE")
	for _, owned := range p.Characters {
		ch, ok := catalog.Character(owned.ID)
		name := "unknown"
		if ok {
			name = ch.Name
		}
		next := neutral.Sprint("max")
		if !catalog.IsMaxLevel(owned.ID, owned.Level) {
			if cost, ok := catalog.UpgradeCost(owned.ID, owned.Level); ok {
				next = formatTON(cost)
			}
		}
		fmt.Printf("%-4d %-18s %-6d %14s %14s\n",
			owned.ID,
			truncate(name, 18),
			owned.Level,
			formatTON(catalog.DailyIncome(owned.ID, owned.Level)),
			next,
		)
	}
	fmt.Println()
	return nil
}

func renderCatalog(spec game.CatalogSpec) error {
	catalog, err := game.NewCatalog(spec)
	if err != nil {
		return fmt.Errorf("server sent an invalid catalog: %w", err)
	}
	accent.Println("\n== CHARACTERS ==")
	fmt.Printf("%-4s %-18s %12s %12s  %s\n", "ID", "NAME", "COST", "INCOME/DAY", "UPGRADES")
	for _, ch := range catalog.Characters() {
		upgrades := "-"
		if catalog.Upgradable(ch.ID) {
			var steps []string
			for level := 1; level < catalog.MaxLevelFor(ch.ID); level++ {
				cost, _ := catalog.UpgradeCost(ch.ID, level)
				steps = append(steps, formatTON(cost))
			}
			upgrades = strings.Join(steps, " > ")
		}
		fmt.Printf("%-4d %-18s %12s %12s  %s\n", ch.ID, truncate(ch.Name, 18), formatTON(ch.Cost), formatTON(ch.BaseIncome), upgrades)
		if ch.Description != "" {
			printInfo("     " + ch.Description)
		}
	}
	fmt.Printf("\nEach level above 1 adds %.0f%% to base income.\n\n", catalog.LevelBonusMultiplier()*100)
	return nil
}

func renderLeaderboard(rows []game.LeaderboardRow) error {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No miners yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %16s %14s\n", "RANK", "PLAYER", "BALANCE", "INCOME/DAY")
	for _, row := range rows {
		fmt.Printf("%-6d %-20s %16s %14s\n", row.Rank, truncate(row.UserID, 20), formatTON(row.Balance), formatTON(row.DailyIncome))
	}
	fmt.Println()
	return nil
}

func renderHistory(entries []game.JournalEntry) error {
	accent.Println("\n== HISTORY ==")
	if len(entries) == 0 {
		printInfo("No transactions yet.")
		return nil
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	fmt.Printf("%-20s %-8s %-4s %-6s %12s %14s\n", "WHEN", "ACTION", "ID", "LEVEL", "AMOUNT", "BALANCE")
	for _, e := range entries {
		fmt.Printf("%-20s %-8s %-4d %-6d %12s %14s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Action,
			e.CharacterID,
			e.Level,
			danger.Sprint("-"+formatTON(e.Amount)),
			formatTON(e.BalanceAfter),
		)
	}
	fmt.Println()
	return nil
}

func formatTON(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
