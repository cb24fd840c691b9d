package fees

import (
	"math/big"
	"testing"
)

func mustCalculator(t *testing.T, params Params) *Calculator {
	t.Helper()
	c, err := New(params)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCalculator_Scenarios(t *testing.T) {
	c := mustCalculator(t, DefaultParams())
	price := big.NewInt(10_000) // 100.00

	tests := []struct {
		name string
		got  *big.Int
		want int64
	}{
		{name: "listing-fee-250bps", got: c.ListingFee(price), want: 250},
		{name: "buyer-deposit-50pct", got: c.BuyerDeposit(price), want: 5_000},
		{name: "success-fee-300bps", got: c.SuccessFee(price), want: 300},
		{name: "seller-stake-1000bps", got: c.SellerStake(price), want: 1_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("got %s, want %d", tt.got, tt.want)
			}
		})
	}
}

func TestCalculator_Quote(t *testing.T) {
	c := mustCalculator(t, DefaultParams())

	q := c.Quote(big.NewInt(10_000))

	if q.SellerPayout.Cmp(big.NewInt(9_700)) != 0 {
		t.Errorf("expected seller payout 9700, got %s", q.SellerPayout)
	}
	if q.SellerNet.Cmp(big.NewInt(9_450)) != 0 {
		t.Errorf("expected seller net 9450, got %s", q.SellerNet)
	}
	if q.BuyerDeposit.Cmp(big.NewInt(5_000)) != 0 {
		t.Errorf("expected deposit 5000, got %s", q.BuyerDeposit)
	}
}

func TestCalculator_FloorRounding(t *testing.T) {
	c := mustCalculator(t, DefaultParams())

	// 250bps of 39 is 0.975, floored to 0.
	if fee := c.ListingFee(big.NewInt(39)); fee.Sign() != 0 {
		t.Errorf("expected floor to zero, got %s", fee)
	}
	// 250bps of 41 is 1.025, floored to 1.
	if fee := c.ListingFee(big.NewInt(41)); fee.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("expected 1, got %s", fee)
	}
	// 50% of 101 is 50.5, floored to 50.
	if dep := c.BuyerDeposit(big.NewInt(101)); dep.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("expected 50, got %s", dep)
	}
}

func TestCalculator_ListingFeeMonotonicAndBelowPrice(t *testing.T) {
	for _, bps := range []uint32{0, 1, 250, 5_000, 9_999} {
		params := DefaultParams()
		params.ListingFeeBps = bps
		params.SuccessFeeBps = 0
		c := mustCalculator(t, params)

		prev := big.NewInt(0)
		for p := int64(1); p <= 5_000; p += 7 {
			fee := c.ListingFee(big.NewInt(p))
			if fee.Cmp(prev) < 0 {
				t.Fatalf("bps=%d: fee decreased at price %d (%s < %s)", bps, p, fee, prev)
			}
			if fee.Cmp(big.NewInt(p)) >= 0 {
				t.Fatalf("bps=%d: fee %s not below price %d", bps, fee, p)
			}
			prev = fee
		}
	}
}

func TestCalculator_SplitForfeiture(t *testing.T) {
	tests := []struct {
		name         string
		sellerBps    uint32
		deposit      int64
		wantSeller   int64
		wantProtocol int64
	}{
		{name: "default-80-20", sellerBps: 8_000, deposit: 5_000, wantSeller: 4_000, wantProtocol: 1_000},
		{name: "all-to-protocol", sellerBps: 0, deposit: 5_000, wantSeller: 0, wantProtocol: 5_000},
		{name: "all-to-seller", sellerBps: 10_000, deposit: 5_000, wantSeller: 5_000, wantProtocol: 0},
		{name: "remainder-to-protocol", sellerBps: 3_333, deposit: 10, wantSeller: 3, wantProtocol: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParams()
			params.ForfeitureSellerBps = tt.sellerBps
			c := mustCalculator(t, params)

			seller, protocol := c.SplitForfeiture(big.NewInt(tt.deposit))
			if seller.Int64() != tt.wantSeller || protocol.Int64() != tt.wantProtocol {
				t.Errorf("got seller=%s protocol=%s, want %d/%d", seller, protocol, tt.wantSeller, tt.wantProtocol)
			}
			if new(big.Int).Add(seller, protocol).Int64() != tt.deposit {
				t.Errorf("split does not sum to deposit")
			}
		})
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Params)
		wantErr bool
	}{
		{name: "defaults", mutate: func(p *Params) {}, wantErr: false},
		{name: "listing-fee-full", mutate: func(p *Params) { p.ListingFeeBps = 10_000 }, wantErr: true},
		{name: "success-fee-full", mutate: func(p *Params) { p.SuccessFeeBps = 10_000 }, wantErr: true},
		{name: "fees-sum-full", mutate: func(p *Params) { p.ListingFeeBps = 5_000; p.SuccessFeeBps = 5_000 }, wantErr: true},
		{name: "zero-deposit", mutate: func(p *Params) { p.DepositMultiplier = 0 }, wantErr: true},
		{name: "stake-over", mutate: func(p *Params) { p.SellerStakeBps = 10_001 }, wantErr: true},
		{name: "forfeiture-over", mutate: func(p *Params) { p.ForfeitureSellerBps = 10_001 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCalculator_NilAndNegativePrice(t *testing.T) {
	c := mustCalculator(t, DefaultParams())

	if c.ListingFee(nil).Sign() != 0 {
		t.Error("expected zero fee for nil price")
	}
	if c.SuccessFee(big.NewInt(-100)).Sign() != 0 {
		t.Error("expected zero fee for negative price")
	}
}

func TestFormatAndParseAmount(t *testing.T) {
	tests := []struct {
		text  string
		minor int64
	}{
		{text: "100.00", minor: 10_000},
		{text: "2.50", minor: 250},
		{text: "0.05", minor: 5},
		{text: "97.00", minor: 9_700},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := FormatAmount(big.NewInt(tt.minor), 2)
			if got != tt.text {
				t.Errorf("FormatAmount(%d) = %q, want %q", tt.minor, got, tt.text)
			}

			parsed, err := ParseAmount(tt.text, 2)
			if err != nil {
				t.Fatalf("ParseAmount(%q) error = %v", tt.text, err)
			}
			if parsed.Int64() != tt.minor {
				t.Errorf("ParseAmount(%q) = %s, want %d", tt.text, parsed, tt.minor)
			}
		})
	}

	if _, err := ParseAmount("1.234", 2); err == nil {
		t.Error("expected error for too many decimals")
	}
	if _, err := ParseAmount("abc", 2); err == nil {
		t.Error("expected error for garbage input")
	}
}
