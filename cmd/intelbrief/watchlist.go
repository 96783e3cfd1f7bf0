package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/intelbrief/internal/database"
)

var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Manage watched countries",
}

var watchlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched countries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		items, err := db.GetWatchlist()
		if err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No countries watched. Add one with: intelbrief watchlist add <country>")
			return nil
		}

		fmt.Println("Watchlist:")
		fmt.Println()
		for _, w := range items {
			icon := " "
			if w.IsActive {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s\n", w.ID, icon, w.Country)
			if len(w.Aliases) > 0 {
				fmt.Printf("        aliases: %s\n", strings.Join(w.Aliases, ", "))
			}
			if w.Focus != nil && *w.Focus != "" {
				fmt.Printf("        focus: %s\n", *w.Focus)
			}
		}
		return nil
	},
}

var (
	watchAliases []string
	watchFocus   string
)

var watchlistAddCmd = &cobra.Command{
	Use:   "add [country]",
	Short: "Watch a country",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		country := strings.TrimSpace(args[0])
		if country == "" {
			return fmt.Errorf("country name must not be blank")
		}

		id, err := db.InsertWatchedCountry(country, watchFocus, watchAliases)
		if err != nil {
			return err
		}
		fmt.Printf("Watching [%d]: %s\n", id, country)
		return nil
	},
}

var watchlistRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Stop watching a country",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		item, err := lookupWatched(db, args[0])
		if err != nil {
			return err
		}

		if err := db.DeleteWatchedCountry(item.ID); err != nil {
			return err
		}
		fmt.Printf("Removed [%d]: %s\n", item.ID, item.Country)
		return nil
	},
}

var watchlistToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Pause or resume a watched country",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		item, err := lookupWatched(db, args[0])
		if err != nil {
			return err
		}

		if err := db.ToggleWatchedCountry(item.ID); err != nil {
			return err
		}
		newState := "paused"
		if !item.IsActive {
			newState = "active"
		}
		fmt.Printf("[%d] %s: %s\n", item.ID, item.Country, newState)
		return nil
	},
}

func lookupWatched(db *database.DB, arg string) (*database.WatchedCountry, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid watchlist ID: %s", arg)
	}
	item, err := db.GetWatchedCountry(id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("watchlist entry %d not found", id)
	}
	return item, nil
}

func init() {
	watchlistAddCmd.Flags().StringSliceVar(&watchAliases, "alias", nil, "Alias that identifies the country in headlines (repeatable)")
	watchlistAddCmd.Flags().StringVar(&watchFocus, "focus", "", "Default focus for this country")

	watchlistCmd.AddCommand(watchlistListCmd)
	watchlistCmd.AddCommand(watchlistAddCmd)
	watchlistCmd.AddCommand(watchlistRemoveCmd)
	watchlistCmd.AddCommand(watchlistToggleCmd)
}
