package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"instructly/models"

	"go.uber.org/zap"
)

// memRepo is an in-memory PaymentRepository for tests.
type memRepo struct {
	mu        sync.Mutex
	payments  map[string]*models.BookingPayment
	transfers map[string]*models.Transfer
	disputes  map[string]*models.Dispute
	events    []models.PaymentEvent
}

func newMemRepo() *memRepo {
	return &memRepo{
		payments:  make(map[string]*models.BookingPayment),
		transfers: make(map[string]*models.Transfer),
		disputes:  make(map[string]*models.Dispute),
	}
}

func (r *memRepo) GetByBookingID(bookingID string) (*models.BookingPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp, ok := r.payments[bookingID]
	if !ok {
		return nil, nil
	}
	cp := *bp
	return &cp, nil
}

func (r *memRepo) FindByIntentID(intentID string) (*models.BookingPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bp := range r.payments {
		if bp.PaymentIntentID == intentID {
			cp := *bp
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) Create(bp *models.BookingPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[bp.BookingID]; exists {
		return fmt.Errorf("booking payment %s already exists", bp.BookingID)
	}
	now := time.Now()
	bp.CreatedAt = now
	bp.UpdatedAt = now
	cp := *bp
	r.payments[bp.BookingID] = &cp
	return nil
}

func (r *memRepo) Update(bp *models.BookingPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[bp.BookingID]; !exists {
		return fmt.Errorf("booking payment %s not found", bp.BookingID)
	}
	bp.UpdatedAt = time.Now()
	cp := *bp
	r.payments[bp.BookingID] = &cp
	return nil
}

func (r *memRepo) GetTransfer(bookingID string) (*models.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transfers[bookingID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memRepo) FindTransferByGatewayID(gatewayTransferID string) (*models.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transfers {
		if t.GatewayTransferID == gatewayTransferID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateTransfer(t *models.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transfers[t.BookingID]; exists {
		return fmt.Errorf("transfer for booking %s already exists", t.BookingID)
	}
	cp := *t
	r.transfers[t.BookingID] = &cp
	return nil
}

func (r *memRepo) UpdateTransfer(t *models.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transfers[t.BookingID]; !exists {
		return fmt.Errorf("transfer for booking %s not found", t.BookingID)
	}
	cp := *t
	r.transfers[t.BookingID] = &cp
	return nil
}

func (r *memRepo) GetOpenDispute(bookingID string) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.disputes {
		if d.BookingID == bookingID && d.Status == models.DisputeStatusOpen {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) GetDisputeByGatewayID(gatewayDisputeID string) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disputes[gatewayDisputeID]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) CreateDispute(d *models.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.disputes[d.GatewayDisputeID]; exists {
		return fmt.Errorf("dispute %s already exists", d.GatewayDisputeID)
	}
	cp := *d
	r.disputes[d.GatewayDisputeID] = &cp
	return nil
}

func (r *memRepo) UpdateDispute(d *models.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.disputes[d.GatewayDisputeID]; !exists {
		return fmt.Errorf("dispute %s not found", d.GatewayDisputeID)
	}
	cp := *d
	r.disputes[d.GatewayDisputeID] = &cp
	return nil
}

func (r *memRepo) AppendEvent(ev *models.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	return nil
}

func (r *memRepo) ListEvents(bookingID string, limit int64) ([]models.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PaymentEvent
	for _, ev := range r.events {
		if ev.BookingID == bookingID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *memRepo) ListDueAuthorizations(now time.Time, limit int64) ([]models.BookingPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BookingPayment
	for _, bp := range r.payments {
		if bp.PaymentStatus == models.PaymentStatusScheduled && bp.AuthScheduledFor != nil && !bp.AuthScheduledFor.After(now) {
			out = append(out, *bp)
		}
	}
	return out, nil
}

func (r *memRepo) ListRetryableCaptures(now time.Time, maxAttempts int, limit int64) ([]models.BookingPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BookingPayment
	for _, bp := range r.payments {
		if bp.PaymentStatus == models.PaymentStatusAuthorized && bp.CaptureRetryAt != nil &&
			!bp.CaptureRetryAt.After(now) && bp.CaptureRetryCount < maxAttempts && !bp.NeedsReview {
			out = append(out, *bp)
		}
	}
	return out, nil
}

func (r *memRepo) ListFailedReversals(limit int64) ([]models.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transfer
	for _, t := range r.transfers {
		if t.TransferReversalFailed && !t.TransferReversed {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memRepo) ListNeedsReview(limit int64) ([]models.BookingPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.BookingPayment
	for _, bp := range r.payments {
		if bp.NeedsReview {
			out = append(out, *bp)
		}
	}
	return out, nil
}

func (r *memRepo) eventCount(bookingID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.BookingID == bookingID {
			n++
		}
	}
	return n
}

func (r *memRepo) eventsOfType(bookingID, eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.BookingID == bookingID && ev.EventType == eventType {
			n++
		}
	}
	return n
}

// memBookings is an in-memory BookingRepository for tests.
type memBookings struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
}

func newMemBookings(bs ...*models.Booking) *memBookings {
	m := &memBookings{bookings: make(map[string]*models.Booking)}
	for _, b := range bs {
		cp := *b
		m.bookings[b.ID] = &cp
	}
	return m
}

func (m *memBookings) GetByID(bookingID string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) ListEnteringAuthWindow(now time.Time, horizon time.Duration, limit int64) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.Status == models.BookingStatusConfirmed && !b.LessonStart.Before(now) && !b.LessonStart.After(now.Add(horizon)) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memBookings) ListCompletedUnsettled(now time.Time, limit int64) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.Status == models.BookingStatusCompleted && !b.LessonEnd.After(now) {
			out = append(out, *b)
		}
	}
	return out, nil
}

// fakeGateway scripts gateway responses and counts calls.
type fakeGateway struct {
	mu sync.Mutex

	authorizeCalls int
	captureCalls   int
	reverseCalls   int
	transferCalls  int

	authorizeKeys []string

	// authorizeErrs/captureErrs are consumed one per call; nil entries
	// (and an exhausted queue) mean success.
	authorizeErrs []error
	captureErrs   []error
	reverseErr    error

	nextID int
}

func (g *fakeGateway) keys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.authorizeKeys...)
}

func (g *fakeGateway) next(prefix string) string {
	g.nextID++
	return fmt.Sprintf("%s_%d", prefix, g.nextID)
}

func pop(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (g *fakeGateway) Authorize(ctx context.Context, p AuthorizeParams) (*AuthorizeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizeCalls++
	g.authorizeKeys = append(g.authorizeKeys, p.IdempotencyKey)
	if err := pop(&g.authorizeErrs); err != nil {
		return nil, err
	}
	return &AuthorizeResponse{IntentID: g.next("pi"), Status: "requires_capture"}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, intentID string) (*CaptureResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	if err := pop(&g.captureErrs); err != nil {
		return nil, err
	}
	return &CaptureResponse{ChargeID: g.next("ch"), TransferID: g.next("tr")}, nil
}

func (g *fakeGateway) Transfer(ctx context.Context, p TransferParams) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transferCalls++
	return g.next("tr"), nil
}

func (g *fakeGateway) ReverseTransfer(ctx context.Context, transferID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reverseCalls++
	return g.reverseErr
}

func (g *fakeGateway) ParseWebhook(payload []byte, sigHeader string) (*models.GatewayEvent, error) {
	return nil, fmt.Errorf("not implemented in fake")
}

// fakeCredits tracks forfeit/restore calls.
type fakeCredits struct {
	mu        sync.Mutex
	spent     map[string]int64
	forfeited map[string]bool
}

func newFakeCredits() *fakeCredits {
	return &fakeCredits{spent: make(map[string]int64), forfeited: make(map[string]bool)}
}

func (c *fakeCredits) SpentCredits(ctx context.Context, bookingID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spent[bookingID], nil
}

func (c *fakeCredits) ForfeitCredits(ctx context.Context, bookingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forfeited[bookingID] = true
	return nil
}

func (c *fakeCredits) RestoreCredits(ctx context.Context, bookingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forfeited[bookingID] = false
	return nil
}

func (c *fakeCredits) isForfeited(bookingID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forfeited[bookingID]
}

// fakeNotifier counts fire-and-forget signals.
type fakeNotifier struct {
	mu                    sync.Mutex
	paymentMethodRequired int
	captureFailed         int
	disputeOpened         int
	disputeClosed         int
}

func (n *fakeNotifier) PaymentMethodRequired(ctx context.Context, b *models.Booking, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paymentMethodRequired++
	return nil
}

func (n *fakeNotifier) CaptureFailed(ctx context.Context, b *models.Booking, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.captureFailed++
	return nil
}

func (n *fakeNotifier) DisputeOpened(ctx context.Context, b *models.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disputeOpened++
	return nil
}

func (n *fakeNotifier) DisputeClosed(ctx context.Context, b *models.Booking, won bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disputeClosed++
	return nil
}

func testPricing() models.PricingConfig {
	return models.PricingConfig{
		StudentFeePct: 0.10,
		TierFeePct: map[string]float64{
			"standard": 0.15,
			"elite":    0.08,
		},
	}
}

func testBooking() *models.Booking {
	return &models.Booking{
		ID:                     "bk_1",
		StudentID:              "stu_1",
		InstructorID:           "ins_1",
		Status:                 models.BookingStatusConfirmed,
		LessonStart:            time.Now().Add(48 * time.Hour),
		LessonEnd:              time.Now().Add(49 * time.Hour),
		BasePrice:              10000,
		Currency:               "usd",
		InstructorTier:         "elite",
		StudentPaymentMethodID: "pm_1",
		InstructorAccountID:    "acct_1",
	}
}

type testEnv struct {
	repo     *memRepo
	bookings *memBookings
	gateway  *fakeGateway
	credits  *fakeCredits
	notifier *fakeNotifier
	svc      *DefaultPaymentService
}

func newTestEnv(bs ...*models.Booking) *testEnv {
	repo := newMemRepo()
	bookings := newMemBookings(bs...)
	gateway := &fakeGateway{}
	credits := newFakeCredits()
	notifier := &fakeNotifier{}

	svc := NewDefaultPaymentService(
		repo,
		bookings,
		NewMemoryBookingLock(),
		gateway,
		credits,
		notifier,
		testPricing(),
		Settings{
			AuthHorizon:        72 * time.Hour,
			AuthMaxAttempts:    3,
			AuthBackoffBase:    10 * time.Minute,
			CaptureMaxAttempts: 3,
			CaptureBackoffBase: 10 * time.Minute,
			LockWait:           2 * time.Second,
		},
		zap.NewNop(),
	)
	return &testEnv{repo: repo, bookings: bookings, gateway: gateway, credits: credits, notifier: notifier, svc: svc}
}
