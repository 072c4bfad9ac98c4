package models

import "time"

// BookingStatus is owned by the scheduling layer; the payment core only
// reads it to decide which bookings are payable or capturable.
type BookingStatus string

const (
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Booking is the read model of a lesson booking. The payment core never
// writes to it; it owns BookingPayment, Transfer and Dispute instead.
type Booking struct {
	ID           string        `bson:"id" json:"id"`
	StudentID    string        `bson:"studentId" json:"studentId"`
	InstructorID string        `bson:"instructorId" json:"instructorId"`
	Status       BookingStatus `bson:"status" json:"status"`

	LessonStart time.Time `bson:"lessonStart" json:"lessonStart"`
	LessonEnd   time.Time `bson:"lessonEnd" json:"lessonEnd"`

	// BasePrice is the lesson price in cents, before fees.
	BasePrice int64  `bson:"basePrice" json:"basePrice"`
	Currency  string `bson:"currency" json:"currency"`

	// AppliedCredit is the account credit (cents) the student asked to
	// spend on this booking.
	AppliedCredit int64 `bson:"appliedCredit" json:"appliedCredit"`

	// InstructorTier selects the platform-fee percentage for the payout.
	InstructorTier string `bson:"instructorTier" json:"instructorTier"`

	// Gateway references resolved by the profile layer.
	StudentPaymentMethodID string `bson:"studentPaymentMethodId,omitempty" json:"studentPaymentMethodId,omitempty"`
	InstructorAccountID    string `bson:"instructorAccountId,omitempty" json:"instructorAccountId,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
