package risk

import (
	"errors"
	"math"
	"testing"
)

func TestSize(t *testing.T) {
	tests := []struct {
		name     string
		balance  float64
		entry    float64
		stop     float64
		leverage float64
		want     float64
		wantErr  error
	}{
		{
			// 2% of 100 risked over a 1.4 stop distance.
			name:    "risk-based quantity",
			balance: 100, entry: 100, stop: 98.6, leverage: 20,
			want: 2.0 / 1.4,
		},
		{
			// Tight stop would imply a huge position; the leveraged
			// notional clamp caps it.
			name:    "notional clamp",
			balance: 100, entry: 100, stop: 99.99, leverage: 20,
			want: 100 * 20 * 0.99 / 100,
		},
		{
			// 0.04 qty is only $4 notional; bumped to the $6 minimum.
			name:    "min-notional bump",
			balance: 10, entry: 100, stop: 95, leverage: 20,
			want: 6.0 / 100,
		},
		{
			// Unleveraged $3 account cannot afford the bump.
			name:    "too small to trade",
			balance: 3, entry: 100, stop: 95, leverage: 1,
			wantErr: ErrPositionTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Size(tt.balance, tt.entry, tt.stop, tt.leverage, 0.02)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v, expected %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("qty=%v, expected %v", got, tt.want)
			}
		})
	}
}

func TestSizeShortUsesAbsoluteStopDistance(t *testing.T) {
	long, err := Size(100, 100, 98.6, 20, 0.02)
	if err != nil {
		t.Fatalf("long: %v", err)
	}
	short, err := Size(100, 100, 101.4, 20, 0.02)
	if err != nil {
		t.Fatalf("short: %v", err)
	}
	if math.Abs(long-short) > 1e-9 {
		t.Fatalf("long=%v short=%v, expected symmetric sizing", long, short)
	}
}

func TestSizeRejectsDegenerateInputs(t *testing.T) {
	if _, err := Size(0, 100, 98, 20, 0.02); err == nil {
		t.Fatal("expected error for zero balance")
	}
	if _, err := Size(100, 100, 100, 20, 0.02); err == nil {
		t.Fatal("expected error for stop at entry")
	}
}
