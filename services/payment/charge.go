package payment

import (
	"math"

	"instructly/models"
)

// BuildChargeContext computes the immutable charge breakdown for a booking.
// Pure and deterministic: same booking and config always produce the same
// breakdown, so authorize and capture can both rebuild it independently.
func BuildChargeContext(b *models.Booking, cfg models.PricingConfig) (*models.ChargeContext, error) {
	if b.BasePrice <= 0 {
		return nil, NewPricingConfigurationError("booking %s has non-positive base price %d", b.ID, b.BasePrice)
	}
	if cfg.StudentFeePct < 0 || cfg.StudentFeePct >= 1 {
		return nil, NewPricingConfigurationError("student fee percentage %.4f out of range", cfg.StudentFeePct)
	}
	tierPct, ok := cfg.TierFeePct[b.InstructorTier]
	if !ok {
		return nil, NewPricingConfigurationError("no fee percentage configured for tier %q", b.InstructorTier)
	}
	if tierPct < 0 || tierPct >= 1 {
		return nil, NewPricingConfigurationError("tier %q fee percentage %.4f out of range", b.InstructorTier, tierPct)
	}
	if b.AppliedCredit < 0 {
		return nil, NewPricingConfigurationError("booking %s has negative applied credit %d", b.ID, b.AppliedCredit)
	}

	studentFee := roundCents(float64(b.BasePrice) * cfg.StudentFeePct)
	instructorFee := roundCents(float64(b.BasePrice) * tierPct)
	payout := b.BasePrice - instructorFee

	// Credit reduces what the card is charged, never below zero.
	credit := b.AppliedCredit
	if credit > b.BasePrice+studentFee {
		credit = b.BasePrice + studentFee
	}
	charge := b.BasePrice + studentFee - credit

	// When credits pushed the card charge below the instructor payout the
	// platform covers the gap with a top-up transfer; otherwise the excess
	// over the payout is the platform's application fee.
	var appFee, topUp int64
	if charge >= payout {
		appFee = charge - payout
	} else {
		topUp = payout - charge
	}

	return &models.ChargeContext{
		BookingID:              b.ID,
		Currency:               b.Currency,
		BasePrice:              b.BasePrice,
		StudentFee:             studentFee,
		InstructorPlatformFee:  instructorFee,
		TargetInstructorPayout: payout,
		StudentPayTotal:        charge,
		ApplicationFee:         appFee,
		TopUpTransfer:          topUp,
		AppliedCredit:          credit,
	}, nil
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}
