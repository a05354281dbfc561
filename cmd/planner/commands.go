package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	config "season-planner-api/configs"
	"season-planner-api/internal/app"
	"season-planner-api/pkg/models"
	"season-planner-api/pkg/services"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "planner",
		Short: "Seasonal inventory planner",
		Long: `planner forecasts category demand with a seasonal/trend ensemble and
replays a full season offline: pre-season planning, allocation, weekly
variance checks with re-forecasts, mid-season pricing and the season report.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().Bool("debug", false, "Log planner internals to stderr")

	root.AddCommand(newForecastCmd())
	root.AddCommand(newSimulateCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newForecastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast weekly demand for a category from a sales file",
		Example: `  planner forecast --history sales.xlsx --category outerwear --horizon 12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			historyPath, _ := cmd.Flags().GetString("history")
			category, _ := cmd.Flags().GetString("category")
			horizon, _ := cmd.Flags().GetInt("horizon")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			planner, err := buildPlanner(cmd, nil, nil)
			if err != nil {
				return err
			}
			if _, err := importHistory(planner, historyPath, category); err != nil {
				return err
			}
			out, err := planner.Forecast(ctx, category, horizon)
			if err != nil {
				return err
			}
			renderForecast(cmd.OutOrStdout(), category, out)
			return nil
		},
	}
	cmd.Flags().String("history", "", "Sales history file (.xlsx or .csv)")
	cmd.Flags().String("category", "", "Category to forecast")
	cmd.Flags().Int("horizon", 12, "Weeks to forecast")
	cmd.MarkFlagRequired("history")
	cmd.MarkFlagRequired("category")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a whole season offline against recorded actuals",
		Example: `  planner simulate --history sales.csv --season season.yaml --actuals season_sales.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			historyPath, _ := cmd.Flags().GetString("history")
			seasonPath, _ := cmd.Flags().GetString("season")
			actualsPath, _ := cmd.Flags().GetString("actuals")

			season, err := config.LoadSeasonFile(seasonPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runSimulation(ctx, cmd, season, historyPath, actualsPath)
		},
	}
	cmd.Flags().String("history", "", "Pre-season sales history file (.xlsx or .csv)")
	cmd.Flags().String("season", "", "Season definition (YAML)")
	cmd.Flags().String("actuals", "", "In-season sales file (.xlsx or .csv)")
	cmd.MarkFlagRequired("history")
	cmd.MarkFlagRequired("season")
	cmd.MarkFlagRequired("actuals")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "planner %s\n", version)
		},
	}
}

func runSimulation(ctx context.Context, cmd *cobra.Command, season *config.SeasonFile, historyPath, actualsPath string) error {
	out := cmd.OutOrStdout()
	progress := services.ProgressFunc(func(ev models.ProgressEvent) {
		fmt.Fprintln(out, progressLine(ev))
	})
	stores := season.Stores
	if len(stores) == 0 {
		stores = app.DefaultStores()
	}
	planner, err := buildPlanner(cmd, stores, progress)
	if err != nil {
		return err
	}
	if _, err := importHistory(planner, historyPath, season.Category); err != nil {
		return err
	}
	actualRecords, err := readSales(actualsPath, season.Category)
	if err != nil {
		return err
	}
	own := actualRecords[:0]
	for _, r := range actualRecords {
		if strings.EqualFold(r.Category, season.Category) {
			own = append(own, r)
		}
	}
	actuals := services.WeeklyActuals(own, season.Params.SeasonStartDate)

	st, err := planner.Workflows.Create(ctx, season.Category, season.Params, season.UnitPrice)
	if err != nil {
		return fmt.Errorf("pre-season planning: %w", err)
	}
	if _, err := planner.Workflows.StartSeason(ctx, st.ID, season.Params.SeasonStartDate); err != nil {
		return fmt.Errorf("initial allocation: %w", err)
	}

	for week := 1; week <= season.Params.ForecastHorizonWeeks; week++ {
		units, ok := actuals[week]
		if !ok {
			fmt.Fprintln(out, runningStyle.Render(fmt.Sprintf("no actuals for week %d, stopping", week)))
			return nil
		}
		rec, _, err := planner.Workflows.SubmitActuals(ctx, st.ID, week, units)
		if err != nil {
			return fmt.Errorf("week %d: %w", week, err)
		}
		renderVariance(out, rec)
	}

	report, err := planner.Workflows.Report(st.ID)
	if err != nil {
		return err
	}
	renderReport(out, report)
	return nil
}

// buildPlanner assembles an in-process planner from the environment.
func buildPlanner(cmd *cobra.Command, stores []models.StoreProfile, progress services.ProgressChannel) (*services.Planner, error) {
	_ = godotenv.Load()
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts := app.PlannerOptions(cfg, logger)
	opts.Stores = stores
	opts.Progress = progress
	return services.NewPlanner(opts)
}

func importHistory(planner *services.Planner, path, category string) (int, error) {
	records, err := readSales(path, category)
	if err != nil {
		return 0, err
	}
	counts := planner.History.Import(records)
	series, ok := planner.History.Get(category)
	if !ok {
		return 0, fmt.Errorf("%s has no rows for category %q (found %d categories)", path, category, len(counts))
	}
	return len(series), nil
}

func readSales(path, category string) ([]models.SalesRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return services.ReadSalesFile(path, f, category)
}
