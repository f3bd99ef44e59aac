package broker

import (
	"strings"
	"testing"
	"time"

	"alertbot/internal/models"
)

func TestOptionSymbol(t *testing.T) {
	exp := time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		symbol     string
		strike     float64
		optionType models.OptionType
		expiration time.Time
		want       string
		wantErr    bool
	}{
		{
			name:       "AAPL 250 call",
			symbol:     "AAPL",
			strike:     250,
			optionType: models.OptionTypeCall,
			expiration: exp,
			want:       "AAPL  251010C00250000",
		},
		{
			name:       "single letter root pads to six",
			symbol:     "F",
			strike:     12.5,
			optionType: models.OptionTypePut,
			expiration: time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
			want:       "F     260116P00012500",
		},
		{
			name:       "six character root not padded",
			symbol:     "GOOGLX",
			strike:     100,
			optionType: models.OptionTypeCall,
			expiration: exp,
			want:       "GOOGLX251010C00100000",
		},
		{
			name:       "fractional strike rounds to thousandths",
			symbol:     "SPY",
			strike:     123.4567,
			optionType: models.OptionTypePut,
			expiration: exp,
			want:       "SPY   251010P00123457",
		},
		{
			name:       "max encodable strike",
			symbol:     "SPX",
			strike:     99999.999,
			optionType: models.OptionTypeCall,
			expiration: exp,
			want:       "SPX   251010C99999999",
		},
		{
			name:       "strike out of range",
			symbol:     "SPX",
			strike:     100000,
			optionType: models.OptionTypeCall,
			expiration: exp,
			wantErr:    true,
		},
		{
			name:       "symbol longer than root field",
			symbol:     "TOOLONGQ",
			strike:     100,
			optionType: models.OptionTypeCall,
			expiration: exp,
			wantErr:    true,
		},
		{
			name:       "empty symbol",
			symbol:     "",
			strike:     100,
			optionType: models.OptionTypeCall,
			expiration: exp,
			wantErr:    true,
		},
		{
			name:       "zero strike",
			symbol:     "AAPL",
			strike:     0,
			optionType: models.OptionTypeCall,
			expiration: exp,
			wantErr:    true,
		},
		{
			name:       "unknown option type",
			symbol:     "AAPL",
			strike:     100,
			optionType: models.OptionType("Straddle"),
			expiration: exp,
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OptionSymbol(tt.symbol, tt.strike, tt.optionType, tt.expiration)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("OptionSymbol() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("OptionSymbol() error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("OptionSymbol() = %q, want %q", got, tt.want)
			}
			if len(got) != 21 {
				t.Fatalf("OptionSymbol() length = %d, want 21", len(got))
			}
			if strings.TrimRight(got[:6], " ") != tt.symbol {
				t.Fatalf("root field %q does not pad %q", got[:6], tt.symbol)
			}
		})
	}
}
