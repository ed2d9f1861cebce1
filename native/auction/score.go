package auction

import "math/big"

const (
	basisPointsDenom = 10_000
	// priceScaleDenom folds the basis-point denominator together with the
	// one-quarter share of the expected daily return that a bid purchases.
	priceScaleDenom = 40_000
	// maxDurationDays caps commitments at a century of days so the score
	// exponentiation stays bounded.
	maxDurationDays = 36_500
)

var (
	scoreGrowthNum = big.NewInt(1001)
	scoreGrowthDen = big.NewInt(1000)
)

// BidTerms bundles the derived economics of a (discount rate, duration)
// pair: the total price the operator pays, the per-day component it is built
// from, and the ranking score.
type BidTerms struct {
	PriceWei       *big.Int
	PricePerDayWei *big.Int
	AuctionScore   *big.Int
}

// ValidateBidTerms applies the parameter checks shared by the quoting and
// mutating paths. Both paths must agree so a quoted price is exactly what
// the state-changing call charges.
func ValidateBidTerms(cfg *Config, discountRateBps, durationDays uint64) error {
	if cfg == nil {
		return errNilConfig
	}
	if discountRateBps > cfg.MaxDiscountRateBps {
		return ErrDiscountTooHigh
	}
	if durationDays < cfg.MinDurationDays {
		return ErrDurationTooShort
	}
	if durationDays > maxDurationDays {
		return ErrDurationTooLong
	}
	return nil
}

// pricePerDay computes the daily bid price in wei:
//
//	expectedDailyReturnWei * (10000 - discountRateBps) / 40000
//
// with floor division. A higher discount rate lowers the daily price.
func pricePerDay(cfg *Config, discountRateBps uint64) *big.Int {
	price := new(big.Int).SetUint64(basisPointsDenom - discountRateBps)
	price.Mul(price, cfg.ExpectedDailyReturnWei)
	return price.Div(price, big.NewInt(priceScaleDenom))
}

// ComputeBidTerms derives price and auction score for a validated
// (discount rate, duration) pair. The total price is the floored per-day
// price multiplied by the duration, and the score compounds the per-day
// price by 0.1% for every committed day:
//
//	score = floor(pricePerDay * 1001^days / 1000^days)
//
// computed with exact integer exponentiation and a single final division so
// two invocations with identical inputs always agree.
func ComputeBidTerms(cfg *Config, discountRateBps, durationDays uint64) (*BidTerms, error) {
	if err := ValidateBidTerms(cfg, discountRateBps, durationDays); err != nil {
		return nil, err
	}
	perDay := pricePerDay(cfg, discountRateBps)
	price := new(big.Int).Mul(perDay, new(big.Int).SetUint64(durationDays))

	days := new(big.Int).SetUint64(durationDays)
	num := new(big.Int).Exp(scoreGrowthNum, days, nil)
	num.Mul(num, perDay)
	den := new(big.Int).Exp(scoreGrowthDen, days, nil)
	score := num.Div(num, den)

	return &BidTerms{
		PriceWei:       price,
		PricePerDayWei: perDay,
		AuctionScore:   score,
	}, nil
}
