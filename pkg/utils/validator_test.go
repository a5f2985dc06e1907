package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateTicker(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		wantErr bool
	}{
		// Valid tickers
		{"stock", "SBER", false},
		{"lowercase", "sber", false},
		{"futures", "SiM4", false},
		{"with dot", "BRK.B", false},
		{"with digits", "RU000A0JX0J2", false},

		// Invalid tickers
		{"empty", "", true},
		{"spaces only", "   ", true},
		{"special chars", "TMOS@", true},
		{"inner space", "SB ER", true},
		{"too long", "ABCDEFGHIJKLMNOPQ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTicker(tt.ticker)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTicker(%q) error = %v, wantErr %v", tt.ticker, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFigi(t *testing.T) {
	tests := []struct {
		figi    string
		wantErr bool
	}{
		{"BBG004730N88", false},
		{"FUTSI0624000", false},
		{"BBG004730N8", true},
		{"bbg004730n88", true},
		{"", true},
	}

	for _, tt := range tests {
		if err := ValidateFigi(tt.figi); (err != nil) != tt.wantErr {
			t.Errorf("ValidateFigi(%q) error = %v, wantErr %v", tt.figi, err, tt.wantErr)
		}
	}
}

func TestValidateInstrumentKey(t *testing.T) {
	for _, key := range []string{"BBG004730N88", "SBER", "SiM4"} {
		if err := ValidateInstrumentKey(key); err != nil {
			t.Errorf("ValidateInstrumentKey(%q) unexpected error: %v", key, err)
		}
	}
	if err := ValidateInstrumentKey("SB ER"); err == nil {
		t.Error("expected error for key with space")
	}
}

func TestValidateAccountID(t *testing.T) {
	if err := ValidateAccountID("2000123456"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateAccountID(""); err == nil {
		t.Error("expected error for empty account")
	}
	if err := ValidateAccountID("2000 123"); err == nil {
		t.Error("expected error for account with space")
	}
}

func TestValidatePercent(t *testing.T) {
	tests := []struct {
		name    string
		pct     string
		wantErr bool
	}{
		{"small", "0.4", false},
		{"hundred", "100", false},
		{"zero", "0", true},
		{"negative", "-1", true},
		{"above hundred", "100.01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePercent("stop_loss_pct", decimal.RequireFromString(tt.pct))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePercent(%s) error = %v, wantErr %v", tt.pct, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDirection(t *testing.T) {
	for _, d := range []string{"", "long", "SHORT", " Long "} {
		if err := ValidateDirection(d); err != nil {
			t.Errorf("ValidateDirection(%q) unexpected error: %v", d, err)
		}
	}
	if err := ValidateDirection("BUY"); err == nil {
		t.Error("expected error for BUY")
	}
}
