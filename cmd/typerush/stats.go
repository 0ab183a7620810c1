package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show your spending and the top spender",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()
	if cfg.Offline {
		return errors.New("stats are only available online")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()
	client := newClient(cfg)

	stats, err := client.Spending(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Hearts:      %d\n", stats.CurrentLives)
	fmt.Fprintf(out, "Total spent: $%s\n", stats.TotalSpent.StringFixed(2))
	fmt.Fprintf(out, "Payments:    %d\n", stats.PaymentCount)
	if stats.LastPaymentAt != nil {
		fmt.Fprintf(out, "Last paid:   %s\n", stats.LastPaymentAt.Local().Format("2006-01-02 15:04"))
	}

	top, err := client.TopSpender(ctx)
	if err != nil {
		return err
	}
	if top == nil {
		fmt.Fprintln(out, "\nNo purchases yet.")
		return nil
	}
	fmt.Fprintf(out, "\nTop spender: %s ($%s)\n", top.Name, top.TotalSpent.StringFixed(2))
	return nil
}
