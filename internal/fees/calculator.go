package fees

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	// BpsDenominator is the basis-point scale used by every fee parameter.
	BpsDenominator = 10_000

	// PercentDenominator is the scale of the buyer deposit multiplier.
	PercentDenominator = 100
)

// Params holds the protocol fee constants.
type Params struct {
	ListingFeeBps       uint32 // charged to the seller at list, non-refundable
	SuccessFeeBps       uint32 // deducted from the price at settlement
	DepositMultiplier   uint32 // buyer deposit as a percentage of price
	SellerStakeBps      uint32 // seller's refundable stake held while listed
	ForfeitureSellerBps uint32 // share of a forfeited deposit paid to the seller
}

// DefaultParams returns the parameters the protocol ships with.
func DefaultParams() Params {
	return Params{
		ListingFeeBps:       250,
		SuccessFeeBps:       300,
		DepositMultiplier:   50,
		SellerStakeBps:      1000,
		ForfeitureSellerBps: 8000,
	}
}

// Validate checks that every parameter is in range.
func (p Params) Validate() error {
	if p.ListingFeeBps >= BpsDenominator {
		return fmt.Errorf("listing fee bps must be below %d, got %d", BpsDenominator, p.ListingFeeBps)
	}
	if p.SuccessFeeBps >= BpsDenominator {
		return fmt.Errorf("success fee bps must be below %d, got %d", BpsDenominator, p.SuccessFeeBps)
	}
	if p.ListingFeeBps+p.SuccessFeeBps >= BpsDenominator {
		return fmt.Errorf("listing and success fees together must stay below %d bps", BpsDenominator)
	}
	if p.DepositMultiplier == 0 {
		return fmt.Errorf("deposit multiplier must be positive")
	}
	if p.SellerStakeBps > BpsDenominator {
		return fmt.Errorf("seller stake bps out of range: %d", p.SellerStakeBps)
	}
	if p.ForfeitureSellerBps > BpsDenominator {
		return fmt.Errorf("forfeiture seller bps out of range: %d", p.ForfeitureSellerBps)
	}
	return nil
}

// Calculator performs floor-rounded integer fee arithmetic. Rounding
// remainders always stay with the protocol side of a split.
type Calculator struct {
	params Params
}

// New creates a calculator after validating params.
func New(params Params) (*Calculator, error) {
	err := params.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate fee params: %w", err)
	}
	return &Calculator{params: params}, nil
}

// Params returns the configured parameters.
func (c *Calculator) Params() Params {
	return c.params
}

// ListingFee returns price * listingFeeBps / 10000.
func (c *Calculator) ListingFee(price *big.Int) *big.Int {
	return mulDiv(price, c.params.ListingFeeBps, BpsDenominator)
}

// BuyerDeposit returns price * depositMultiplier / 100.
func (c *Calculator) BuyerDeposit(price *big.Int) *big.Int {
	return mulDiv(price, c.params.DepositMultiplier, PercentDenominator)
}

// SuccessFee returns price * successFeeBps / 10000.
func (c *Calculator) SuccessFee(price *big.Int) *big.Int {
	return mulDiv(price, c.params.SuccessFeeBps, BpsDenominator)
}

// SellerStake returns price * sellerStakeBps / 10000.
func (c *Calculator) SellerStake(price *big.Int) *big.Int {
	return mulDiv(price, c.params.SellerStakeBps, BpsDenominator)
}

// SplitForfeiture divides a forfeited deposit between seller and protocol.
// The seller share is floored; the protocol keeps the remainder, so the two
// parts always sum to the deposit.
func (c *Calculator) SplitForfeiture(deposit *big.Int) (seller *big.Int, protocol *big.Int) {
	seller = mulDiv(deposit, c.params.ForfeitureSellerBps, BpsDenominator)
	protocol = new(big.Int).Sub(clamp(deposit), seller)
	return seller, protocol
}

// Quote is the full fee breakdown for a price.
type Quote struct {
	Price        *big.Int
	ListingFee   *big.Int
	SuccessFee   *big.Int
	BuyerDeposit *big.Int
	SellerStake  *big.Int
	SellerPayout *big.Int // price minus success fee, released at settlement
	SellerNet    *big.Int // payout minus the listing fee already paid
}

// Quote computes every amount derived from price.
func (c *Calculator) Quote(price *big.Int) Quote {
	p := clamp(price)
	listingFee := c.ListingFee(p)
	successFee := c.SuccessFee(p)
	payout := new(big.Int).Sub(p, successFee)

	return Quote{
		Price:        p,
		ListingFee:   listingFee,
		SuccessFee:   successFee,
		BuyerDeposit: c.BuyerDeposit(p),
		SellerStake:  c.SellerStake(p),
		SellerPayout: payout,
		SellerNet:    new(big.Int).Sub(payout, listingFee),
	}
}

func mulDiv(amount *big.Int, numerator uint32, denominator int64) *big.Int {
	v := clamp(amount)
	v.Mul(v, new(big.Int).SetUint64(uint64(numerator)))
	return v.Quo(v, big.NewInt(denominator))
}

// clamp returns a copy of v, treating nil and negative values as zero.
func clamp(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// FormatAmount renders minor units with the given number of decimals,
// e.g. 10050 with 2 decimals is "100.50".
func FormatAmount(v *big.Int, decimals int) string {
	if v == nil {
		v = big.NewInt(0)
	}
	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()
	if decimals <= 0 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	out := digits[:len(digits)-decimals] + "." + digits[len(digits)-decimals:]
	if neg {
		return "-" + out
	}
	return out
}

// ParseAmount parses a decimal string into minor units, rejecting more
// fractional digits than decimals allows.
func ParseAmount(s string, decimals int) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && len(frac) > decimals {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
