package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"muninn/internal/outcomes"
	"muninn/internal/project"
)

// statsCmd computes (or refreshes, with --refresh) and prints the
// project's monthly health/ROI composite plus its current risk
// alert count -- a quick CLI window onto otherwise work-queue-only
// aggregates.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the project's health score, ROI, and active risk alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if statsRefresh {
			if err := outcomes.ComputeMonthlyHealth(ctx, a.store, a.project.ID); err != nil {
				return fmt.Errorf("refresh health: %w", err)
			}
			if _, err := outcomes.ScanRiskAlerts(ctx, a.store, a.project.ID); err != nil {
				return fmt.Errorf("refresh risk alerts: %w", err)
			}
		}

		row, err := a.store.Get(ctx,
			`SELECT month, health_score, roi_score, context_hits, context_misses, decisions_recalled, learnings_recalled, session_count
			 FROM value_metrics WHERE project_id = ? ORDER BY month DESC LIMIT 1`, a.project.ID)
		if err != nil {
			return fmt.Errorf("load value metrics: %w", err)
		}
		if row == nil {
			fmt.Println("no value_metrics row yet -- run with --refresh or let the worker run aggregate_health_roi")
		} else {
			health, _ := row["health_score"].(float64)
			roi, _ := row["roi_score"].(float64)
			hits, _ := project.AsInt64(row["context_hits"])
			misses, _ := project.AsInt64(row["context_misses"])
			decisions, _ := project.AsInt64(row["decisions_recalled"])
			learnings, _ := project.AsInt64(row["learnings_recalled"])
			sessions, _ := project.AsInt64(row["session_count"])
			fmt.Printf("month:            %v\n", row["month"])
			fmt.Printf("health score:     %.1f/100\n", health)
			fmt.Printf("roi score:        %.2f\n", roi)
			fmt.Printf("context hits/miss: %d/%d\n", hits, misses)
			fmt.Printf("recalled:         %d decisions, %d learnings\n", decisions, learnings)
			fmt.Printf("sessions:         %d\n", sessions)
		}

		alertRow, err := a.store.Get(ctx,
			"SELECT COUNT(*) AS n FROM risk_alerts WHERE project_id = ? AND dismissed = 0", a.project.ID)
		if err == nil && alertRow != nil {
			n, _ := project.AsInt64(alertRow["n"])
			fmt.Printf("active risk alerts: %d\n", n)
		}
		return nil
	},
}

var statsRefresh bool

func init() {
	statsCmd.Flags().BoolVar(&statsRefresh, "refresh", false, "recompute health/ROI and risk alerts before printing")
}
