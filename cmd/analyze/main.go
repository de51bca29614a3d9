package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rray336/financial-model-analyzer/internal/infrastructure"
	"github.com/rray336/financial-model-analyzer/internal/services"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

func main() {
	oldFile := flag.String("old", "", "path to the older model workbook (.xlsx)")
	newFile := flag.String("new", "", "path to the newer model workbook (.xlsx)")
	statement := flag.String("statement", "income_statement", "statement type: income_statement, balance_sheet or cash_flow")
	sheet := flag.String("sheet", "", "sheet name holding the statement (must exist in both workbooks)")
	period := flag.String("period", "", "period label to compare (defaults to the first common period)")
	drill := flag.String("drill", "", "line item name to drill into after the variance table")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *oldFile == "" || *newFile == "" || *sheet == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -old OLD.xlsx -new NEW.xlsx -sheet SHEET [-statement TYPE] [-period LABEL] [-drill \"LINE ITEM\"]")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st := domain.StatementType(*statement)
	if !st.Valid() {
		slog.Error("Unknown statement type", slog.String("statement", *statement))
		os.Exit(2)
	}

	ctx := infrastructure.EnsureTraceID(context.Background())
	store := services.NewSessionStore(0, logger)
	svc := services.NewAnalysisService(store, services.DefaultConfig(), logger)

	info, err := svc.CreateSession(ctx, *oldFile, *newFile)
	if err != nil {
		slog.Error("Failed to load workbooks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := svc.SetSelections(info.SessionID, domain.SheetSelection{st: *sheet}); err != nil {
		slog.Error("Sheet selection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	align, err := svc.PeriodAlignment(ctx, info.SessionID, st)
	if err != nil {
		slog.Error("Structure detection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	label := *period
	if label == "" {
		if len(align.Common) == 0 {
			slog.Error("No common periods between the two versions",
				slog.String("old_only", strings.Join(align.OldOnly, ", ")),
				slog.String("new_only", strings.Join(align.NewOnly, ", ")))
			os.Exit(1)
		}
		label = align.Common[0]
	}

	fmt.Printf("%s vs %s, %s, period %s\n", info.OldFile, info.NewFile, st, label)
	fmt.Printf("common periods: %s\n", strings.Join(align.Common, ", "))
	if len(align.OldOnly) > 0 {
		fmt.Printf("only in old:    %s\n", strings.Join(align.OldOnly, ", "))
	}
	if len(align.NewOnly) > 0 {
		fmt.Printf("only in new:    %s\n", strings.Join(align.NewOnly, ", "))
	}
	fmt.Println()

	results, err := svc.Variance(ctx, info.SessionID, st, label)
	if err != nil {
		slog.Error("Variance computation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LINE ITEM\tOLD\tNEW\tABS\tPCT\tMATCH")
	for _, res := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			res.LineItemName,
			formatValue(res.OldValue),
			formatValue(res.NewValue),
			res.AbsoluteVariance,
			formatPct(res),
			res.MatchKind)
	}
	w.Flush()

	if *drill == "" {
		return
	}

	fmt.Println()
	dd, err := svc.DrillDown(ctx, info.SessionID, st, *drill, label)
	if err != nil {
		slog.Error("Drill-down failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Printf("drill-down: %s (%s)\n", dd.LineItemName, dd.Status)
	if dd.Status == domain.DrillDownFailed {
		fmt.Printf("  reason: %s\n", dd.FailureReason)
		for _, warn := range dd.Warnings {
			fmt.Printf("  warning: %s\n", warn)
		}
		return
	}

	fmt.Printf("  total variance:  %.2f\n", dd.TotalVariance)
	fmt.Printf("  explained:       %.2f\n", dd.TotalExplained)
	fmt.Printf("  unexplained:     %.2f\n", dd.UnexplainedVariance)
	dw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(dw, "  COMPONENT\tCELL\tOLD\tNEW\tCONTRIBUTION")
	for _, c := range dd.Components {
		name := c.Name
		if c.Asymmetric {
			name += " (*)"
		}
		fmt.Fprintf(dw, "  %s\t%s\t%s\t%s\t%.2f\n",
			name, c.CellRef, formatValue(c.OldValue), formatValue(c.NewValue), c.VarianceContribution)
	}
	dw.Flush()
	for _, warn := range dd.Warnings {
		fmt.Printf("  warning: %s\n", warn)
	}
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatPct(res domain.VarianceResult) string {
	if res.PercentageUndefined {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", res.PercentageVariance)
}
