package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/intelbrief/internal/collect"
	"github.com/TobiSchelling/intelbrief/internal/config"
	"github.com/TobiSchelling/intelbrief/internal/database"
	"github.com/TobiSchelling/intelbrief/internal/news"
	"github.com/TobiSchelling/intelbrief/internal/pipeline"
	"github.com/TobiSchelling/intelbrief/internal/schedule"
	"github.com/TobiSchelling/intelbrief/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	envFile    string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "intelbrief",
	Short:   "Country security briefings from open news sources",
	Long:    "intelbrief collects world news, groups it by country, rates the threat level and writes a narrative brief per country.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// API keys may live in a .env file next to the config.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "DEBUG"
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file with API keys")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchlistCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("intelbrief", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/intelbrief/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure countries, feeds, API keys, and LLM provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		lastRun, _ := db.GetLastRunDate()

		fmt.Printf("Today: %s\n", database.GetToday())
		if lastRun != "" {
			fmt.Printf("Last run: %s\n", lastRun)
		}
		fmt.Println("\nArticles:")
		fmt.Printf("  Total collected: %d\n", stats.TotalArticles)
		fmt.Printf("  Days with data: %d\n", stats.PeriodsWithArticles)
		fmt.Printf("  Cached pages: %d\n", stats.CachedPages)
		fmt.Println("\nReports:")
		fmt.Printf("  Runs: %d\n", stats.Runs)
		fmt.Printf("  Country reports: %d\n", stats.Reports)
		fmt.Println("\nCountries:")
		fmt.Printf("  Configured: %d\n", len(cfg.Countries))
		fmt.Printf("  Watchlist: %d (%d active)\n", stats.WatchedCountries, stats.ActiveCountries)
		return nil
	},
}

// --- collect command ---

var collectCmd = &cobra.Command{
	Use:   "collect [country...]",
	Short: "Collect articles from configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signalContext()
		defer stop()

		periodID := database.GetToday()
		countries := pipeline.New(cfg, db).Countries(args)
		fmt.Printf("Collecting articles for %d countries...\n", len(countries))

		collector := collect.NewCollector(cfg, db, cfg.Sources.DaysBack)
		result := collector.Collect(ctx, periodID, countries)

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  New articles: %d\n", result.NewArticles)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)

		if len(result.Sources) > 0 {
			fmt.Println("\nArticles by source:")
			// Sort sources by count descending
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

// --- report command ---

var (
	dryRun     bool
	daysBack   int
	focus      string
	jsonOutput bool
)

var reportCmd = &cobra.Command{
	Use:   "report [country...]",
	Short: "Collect, synthesize and store country reports",
	Long: "Collects articles and writes one report per country. Without arguments the " +
		"configured countries and the active watchlist are used.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		today := database.GetToday()
		periodID, effectiveDaysBack, err := resolvePeriod(db, today, daysBack)
		if err != nil {
			return err
		}

		pipe := pipeline.New(cfg, db)
		ctx, stop := signalContext()
		defer stop()

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(periodID, args, focus)
		} else {
			result = pipe.Run(ctx, periodID, effectiveDaysBack, args, focus)
		}

		if jsonOutput && !dryRun {
			if result.Failed() {
				return firstError(result)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(pipeline.Ordered(pipe.Countries(args), result.Reports))
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if dryRun {
			return nil
		}
		if result.Failed() {
			return firstError(result)
		}

		for _, r := range pipeline.Ordered(pipe.Countries(args), result.Reports) {
			printReport(r)
		}
		fmt.Println("\nDone! Run 'intelbrief serve' to browse the reports.")
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	reportCmd.Flags().IntVar(&daysBack, "days-back", 0, "Override lookback window (days)")
	reportCmd.Flags().StringVar(&focus, "focus", "", "Focus areas for the narrative, e.g. \"gang violence, elections\"")
	reportCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print reports as JSON")
}

func printReport(r *news.Report) {
	fmt.Printf("\n== %s [%s] ==\n", r.Country, r.ThreatLevel)
	fmt.Println(r.ExecutiveSummary)
	if len(r.KeyPoints) > 0 {
		fmt.Println("\nKey points:")
		for _, p := range r.KeyPoints {
			fmt.Printf("  - %s\n", p)
		}
	}
	fmt.Printf("\n%s\n", r.Narrative)
	if r.Note != "" {
		fmt.Printf("\nNote: %s\n", r.Note)
	}
}

func firstError(r *pipeline.Result) error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(s.Name), s.Err)
		}
	}
	return nil
}

// resolvePeriod determines the period ID and effective days back based on
// explicit --days-back, catch-up detection, or daily run.
func resolvePeriod(db *database.DB, today string, explicitDaysBack int) (periodID string, effectiveDaysBack int, err error) {
	if explicitDaysBack > 0 {
		if explicitDaysBack == 1 {
			periodID = today
		} else {
			todayDate, _ := time.Parse("2006-01-02", today)
			start := todayDate.AddDate(0, 0, -(explicitDaysBack - 1)).Format("2006-01-02")
			periodID = database.MakePeriodID(start, today)
		}
		fmt.Printf("Collecting %d day(s) of articles (%s).\n", explicitDaysBack, periodID)
		return periodID, explicitDaysBack, nil
	}

	lastRun, _ := db.GetLastRunDate()
	if lastRun == "" {
		fmt.Println("First run detected, collecting today's articles.")
		return today, cfg.Sources.DaysBack, nil
	}

	lastDate, _ := time.Parse("2006-01-02", lastRun)
	todayDate, _ := time.Parse("2006-01-02", today)
	missedDays := int(todayDate.Sub(lastDate).Hours() / 24)

	if missedDays <= 1 {
		return today, cfg.Sources.DaysBack, nil
	}

	// Catch-up: missed multiple days
	startDate := lastDate.AddDate(0, 0, 1).Format("2006-01-02")
	periodID = database.MakePeriodID(startDate, today)

	if missedDays > 5 {
		fmt.Printf("Last run was %d days ago (%s).\n", missedDays, lastRun)
		fmt.Printf("Catch up %d days (%s)? This will use more API calls [y/N]: ", missedDays, periodID)

		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			return "", 0, fmt.Errorf("aborted")
		}
	} else {
		fmt.Printf("Catching up %d days (%s).\n", missedDays, periodID)
	}

	return periodID, missedDays, nil
}

// --- history command ---

var (
	historyCountry string
	historyLevel   string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		filter := database.ReportFilter{Country: historyCountry, Limit: historyLimit}
		if historyLevel != "" {
			level, err := news.ParseThreatLevel(historyLevel)
			if err != nil {
				return err
			}
			filter.MinLevel = level
		}

		reports, err := db.QueryReports(filter)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Println("No reports found. Generate some with: intelbrief report")
			return nil
		}

		for _, r := range reports {
			fmt.Printf("  [%d] %-20s %-12s %3d articles  %s\n",
				r.ID, r.Country, r.ThreatLevel, r.ArticleCount, database.FormatPeriodDisplay(r.PeriodID))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyCountry, "country", "", "Only reports for this country")
	historyCmd.Flags().StringVar(&historyLevel, "level", "", "Minimum threat level (e.g. MODERATE)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of reports")
}

// --- schedule command ---

var runOnce bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Generate reports on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)
		days := cfg.Schedule.DaysBack
		if days <= 0 {
			days = cfg.Sources.DaysBack
		}

		sched, err := schedule.New(cfg.Schedule.Cron, func(ctx context.Context) error {
			result := pipe.Run(ctx, database.GetToday(), days, nil, "")
			if maxAge := time.Duration(cfg.Extraction.CacheHours) * time.Hour; maxAge > 0 {
				if n, err := db.PruneContentCache(maxAge); err != nil {
					log.Printf("Pruning content cache: %v", err)
				} else if n > 0 {
					log.Printf("Pruned %d cached pages", n)
				}
			}
			return firstError(result)
		})
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		if runOnce {
			return sched.RunNow(ctx)
		}
		fmt.Printf("Scheduler running (%s). Press Ctrl+C to stop\n", cfg.Schedule.Cron)
		return sched.Run(ctx)
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&runOnce, "once", false, "Run the scheduled job once and exit")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		pipe := pipeline.New(cfg, db)
		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, db, port, server.Options{
			Runner:   pipe,
			Cache:    pipe.Cache(),
			DaysBack: cfg.Sources.DaysBack,
		})
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "intelbrief.db")
	return database.Open(dbPath)
}
