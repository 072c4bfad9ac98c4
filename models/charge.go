package models

// PricingConfig carries the fee percentages the charge builder consumes.
// Percentages are fractions (0.10 == 10%).
type PricingConfig struct {
	StudentFeePct float64            `mapstructure:"STUDENT_FEE_PCT"`
	TierFeePct    map[string]float64 `mapstructure:"TIER_FEE_PCT"`
}

// ChargeContext is the immutable charge breakdown for one booking. All
// amounts are cents. Built once per authorization attempt by the charge
// builder and threaded through authorize/capture unchanged.
type ChargeContext struct {
	BookingID string
	Currency  string

	BasePrice              int64
	StudentFee             int64
	InstructorPlatformFee  int64
	TargetInstructorPayout int64

	// StudentPayTotal is what the card is actually charged: base plus
	// student fee minus applied credit, floored at zero.
	StudentPayTotal int64

	// ApplicationFee is the platform's cut of the card charge. Zero when
	// credits pushed the charge below the instructor payout.
	ApplicationFee int64

	// TopUpTransfer is the amount the platform must transfer out of its
	// own balance because applied credit covered part of the charge.
	TopUpTransfer int64

	AppliedCredit int64
}
