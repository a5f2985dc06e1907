package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"slguard/internal/models"
	"slguard/internal/repository"
	"slguard/internal/settings"
	"slguard/pkg/utils"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage per-account and per-instrument protection settings",
		Long: `Settings are resolved per decision as:
defaults (settings file) -> global (database) -> instrument (settings file) -> instrument (database).`,
	}

	cmd.AddCommand(newSettingsListCmd())
	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())
	cmd.AddCommand(newSettingsDeleteCmd())
	return cmd
}

func newSettingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored settings layers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			layers, err := repository.NewSettingsRepository(a.db).List(cmd.Context(), a.cfg.Broker.AccountID)
			if err != nil {
				return err
			}
			if layers == nil {
				layers = []*models.SettingsLayer{}
			}
			return printJSON(cmd.OutOrStdout(), layers)
		},
	}
}

func newSettingsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show TICKER",
		Short: "Show effective settings for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateTicker(args[0]); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			resolver, _, err := a.settingsResolver()
			if err != nil {
				return err
			}
			eff, err := resolver.GetEffectiveSettings(cmd.Context(), a.cfg.Broker.AccountID, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), eff)
		},
	}
}

// settingsFlags - значения флагов settings set; учитываются только явно заданные
type settingsFlags struct {
	sl, tp                     string
	slActivation, tpActivation string
	multiTP                    string
	levels                     string
}

func newSettingsSetCmd() *cobra.Command {
	var f settingsFlags

	cmd := &cobra.Command{
		Use:   "set [TICKER]",
		Short: "Create or update a settings layer (global without TICKER)",
		Long: `Only flags given on the command line are changed; the rest of the layer is kept.
Use "inherit" to clear a value and fall back to the lower layer.

Examples:
  slguard settings set --sl 1 --tp 3
  slguard settings set SBER --sl-activation 0.5 --tp-activation off
  slguard settings set GAZP --multi-tp true --levels 1:30,2:30,3:40`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ticker string
			if len(args) == 1 {
				if err := utils.ValidateTicker(args[0]); err != nil {
					return err
				}
				ticker = strings.ToUpper(args[0])
			}

			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			repo := repository.NewSettingsRepository(a.db)
			layer, err := loadLayer(cmd.Context(), repo, a.cfg.Broker.AccountID, ticker)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, layer); err != nil {
				return err
			}
			if err := repo.Upsert(cmd.Context(), layer); err != nil {
				return err
			}
			a.logger.Info("settings layer saved", utils.Ticker(layer.Ticker), utils.Account(layer.AccountID))
			return printJSON(cmd.OutOrStdout(), layer)
		},
	}

	cmd.Flags().StringVar(&f.sl, "sl", "", "stop-loss percent, or inherit")
	cmd.Flags().StringVar(&f.tp, "tp", "", "take-profit percent, or inherit")
	cmd.Flags().StringVar(&f.slActivation, "sl-activation", "", "SL activation percent, off or inherit")
	cmd.Flags().StringVar(&f.tpActivation, "tp-activation", "", "TP activation percent, off or inherit")
	cmd.Flags().StringVar(&f.multiTP, "multi-tp", "", "enable TP ladder: true, false or inherit")
	cmd.Flags().StringVar(&f.levels, "levels", "", "TP ladder as price_pct:volume_pct,..., or inherit")
	return cmd
}

func loadLayer(ctx context.Context, repo *repository.SettingsRepository, accountID, ticker string) (*models.SettingsLayer, error) {
	var (
		layer *models.SettingsLayer
		err   error
	)
	if ticker == "" {
		layer, err = repo.GetGlobal(ctx, accountID)
	} else {
		layer, err = repo.GetInstrument(ctx, accountID, ticker)
	}
	if errors.Is(err, repository.ErrSettingsNotFound) {
		return &models.SettingsLayer{
			AccountID:    accountID,
			Ticker:       ticker,
			SLActivation: models.InheritActivation(),
			TPActivation: models.InheritActivation(),
		}, nil
	}
	return layer, err
}

func (f *settingsFlags) apply(cmd *cobra.Command, layer *models.SettingsLayer) error {
	changed := cmd.Flags().Changed

	if changed("sl") {
		v, err := parsePercent("--sl", f.sl)
		if err != nil {
			return err
		}
		layer.StopLossPct = v
	}
	if changed("tp") {
		v, err := parsePercent("--tp", f.tp)
		if err != nil {
			return err
		}
		layer.TakeProfitPct = v
	}
	if changed("sl-activation") {
		v, err := settings.ParseActivation(f.slActivation)
		if err != nil {
			return err
		}
		layer.SLActivation = v
	}
	if changed("tp-activation") {
		v, err := settings.ParseActivation(f.tpActivation)
		if err != nil {
			return err
		}
		layer.TPActivation = v
	}
	if changed("multi-tp") {
		if strings.EqualFold(f.multiTP, "inherit") {
			layer.MultiTPEnabled = nil
		} else {
			v, err := strconv.ParseBool(f.multiTP)
			if err != nil {
				return fmt.Errorf("--multi-tp: %w", err)
			}
			layer.MultiTPEnabled = &v
		}
	}
	if changed("levels") {
		if strings.EqualFold(f.levels, "inherit") {
			layer.MultiTPLevels = nil
		} else {
			levels, err := settings.ParseLevels(f.levels)
			if err != nil {
				return fmt.Errorf("--levels: %w", err)
			}
			layer.MultiTPLevels = levels
		}
	}
	return nil
}

func parsePercent(flag, s string) (decimal.NullDecimal, error) {
	if strings.EqualFold(strings.TrimSpace(s), "inherit") {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", flag, err)
	}
	if err := utils.ValidatePercent(flag, d); err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func newSettingsDeleteCmd() *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "delete [TICKER]",
		Short: "Delete a settings layer (use --global for the account layer)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ticker string
			switch {
			case len(args) == 1 && !global:
				if err := utils.ValidateTicker(args[0]); err != nil {
					return err
				}
				ticker = strings.ToUpper(args[0])
			case len(args) == 0 && global:
			default:
				return fmt.Errorf("give either TICKER or --global")
			}

			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := repository.NewSettingsRepository(a.db).Delete(cmd.Context(), a.cfg.Broker.AccountID, ticker); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "delete the account-wide layer")
	return cmd
}
