package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AngelCh415/adreview/internal/ai"
	"github.com/AngelCh415/adreview/internal/config"
	"github.com/AngelCh415/adreview/internal/ingest"
	"github.com/AngelCh415/adreview/internal/review"
	"github.com/AngelCh415/adreview/internal/scoring"
	"github.com/AngelCh415/adreview/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "adreviewctl",
	Short:        "adreviewctl - inspect ad review views from a snapshot file",
	SilenceUsage: true,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print the prioritized dashboard for an account",
	RunE:  runDashboard,
}

var breakdownCmd = &cobra.Command{
	Use:   "breakdown",
	Short: "Print the breakdown of one campaign",
	RunE:  runBreakdown,
}

var detailCmd = &cobra.Command{
	Use:   "detail",
	Short: "Print the detail view of one ad group",
	RunE:  runDetail,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Run the AI summary pipeline for one ad group",
	RunE:  runSummary,
}

var (
	snapshotFlag string
	scoringFlag  string
	daysFlag     int
	accountFlag  string
	campaignFlag string
	adGroupFlag  string
	modeFlag     string
	contextFlag  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&snapshotFlag, "snapshot", "", "Snapshot JSON file (demo data when empty)")
	rootCmd.PersistentFlags().StringVar(&scoringFlag, "scoring", "", "Scoring override tables (YAML)")
	rootCmd.PersistentFlags().IntVar(&daysFlag, "days", 7, "Period length in days (3, 7 or 14)")

	dashboardCmd.Flags().StringVar(&accountFlag, "account", "", "Account id (first account when empty)")
	breakdownCmd.Flags().StringVar(&campaignFlag, "campaign", "", "Campaign id")
	breakdownCmd.MarkFlagRequired("campaign")
	detailCmd.Flags().StringVar(&adGroupFlag, "adgroup", "", "Ad group id")
	detailCmd.MarkFlagRequired("adgroup")
	summaryCmd.Flags().StringVar(&adGroupFlag, "adgroup", "", "Ad group id")
	summaryCmd.Flags().StringVar(&modeFlag, "mode", "full", "insight or full")
	summaryCmd.Flags().StringVar(&contextFlag, "context", "", "Business context passed to the model")
	summaryCmd.MarkFlagRequired("adgroup")

	rootCmd.AddCommand(dashboardCmd, breakdownCmd, detailCmd, summaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func logger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// openService loads the snapshot into a memory store and wires the review service.
func openService(ctx context.Context, log *slog.Logger) (*review.Service, error) {
	st := store.NewMemoryStore()
	if snapshotFlag == "" {
		if _, err := st.LoadSnapshot(ctx, store.DemoSnapshot(time.Now())); err != nil {
			return nil, err
		}
	} else {
		etl := ingest.NewETL(nil, st, st, log, config.Config{})
		if _, err := etl.LoadFile(ctx, snapshotFlag); err != nil {
			return nil, fmt.Errorf("load %s: %w", snapshotFlag, err)
		}
	}
	tables, err := scoring.LoadTables(scoringFlag)
	if err != nil {
		return nil, err
	}
	return review.NewService(st, scoring.NewResolver(scoring.DefaultThresholds(), tables), log), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := openService(ctx, logger(cmd))
	if err != nil {
		return err
	}
	d, err := svc.Dashboard(ctx, accountFlag, daysFlag)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), d)
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := openService(ctx, logger(cmd))
	if err != nil {
		return err
	}
	b, err := svc.CampaignBreakdown(ctx, campaignFlag, daysFlag)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), b)
}

func runDetail(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := openService(ctx, logger(cmd))
	if err != nil {
		return err
	}
	d, err := svc.AdGroupDetail(ctx, adGroupFlag, daysFlag)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), d)
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	mode, ok := ai.ParseMode(modeFlag)
	if !ok {
		return fmt.Errorf("unknown mode %q (insight or full)", modeFlag)
	}
	log := logger(cmd)
	svc, err := openService(ctx, log)
	if err != nil {
		return err
	}
	cfg := config.Load().AI
	pipeline := ai.NewPipeline(cfg, ai.NewClient(&http.Client{}), svc, nil, log, nil)
	res := pipeline.Summary(ctx, ai.Request{
		AdGroupID:       adGroupFlag,
		PeriodDays:      daysFlag,
		BusinessContext: contextFlag,
		Mode:            mode,
	})
	return printJSON(cmd.OutOrStdout(), res)
}
