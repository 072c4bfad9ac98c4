package credit

import "context"

// CreditLedger is the account-credit collaborator. The payment core only
// needs to know how much credit a booking spent and to forfeit or restore
// that spend while a charge is contested; balance bookkeeping lives outside.
type CreditLedger interface {
	SpentCredits(ctx context.Context, bookingID string) (int64, error)
	ForfeitCredits(ctx context.Context, bookingID string) error
	RestoreCredits(ctx context.Context, bookingID string) error
}
