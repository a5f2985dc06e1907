package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"slguard/internal/engine"
	"slguard/internal/instruments"
	"slguard/pkg/utils"
)

func newLevelsCmd() *cobra.Command {
	var (
		price     string
		direction string
		quantity  int64
		offline   bool
	)

	cmd := &cobra.Command{
		Use:   "levels TICKER|FIGI",
		Short: "Show SL/TP levels the engine would place for a position",
		Long: `Compute protective levels for a hypothetical position without placing orders.
Example: slguard levels SBER --price 250.5 --direction long --quantity 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateInstrumentKey(args[0]); err != nil {
				return err
			}
			if err := utils.ValidateDirection(direction); err != nil {
				return err
			}
			p, err := decimal.NewFromString(price)
			if err != nil || !p.IsPositive() {
				return fmt.Errorf("--price must be a positive number, got %q", price)
			}
			if quantity < 0 {
				return fmt.Errorf("--quantity must not be negative")
			}

			preview, err := runLevels(cmd.Context(), args[0], p, direction, quantity, offline)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), preview)
		},
	}

	cmd.Flags().StringVar(&price, "price", "", "average entry price")
	cmd.Flags().StringVar(&direction, "direction", "LONG", "position direction: LONG or SHORT")
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "position size in shares, used for the ladder split")
	cmd.Flags().BoolVar(&offline, "offline", false, "ignore settings stored in the database")
	_ = cmd.MarkFlagRequired("price")

	return cmd
}

func runLevels(ctx context.Context, key string, price decimal.Decimal, direction string, quantity int64, offline bool) (*engine.LevelsPreview, error) {
	a, err := newApp(ctx, !offline)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	client, err := a.brokerClient()
	if err != nil {
		return nil, err
	}
	resolver, calc, err := a.settingsResolver()
	if err != nil {
		return nil, err
	}

	cache := instruments.NewCache(client, a.retryConfig(), a.logger)
	return engine.PreviewLevels(ctx, cache, resolver, calc, a.cfg.Broker.AccountID, key, price, direction, quantity)
}
