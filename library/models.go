package library

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Book is one title in the catalog, identified by its normalized ISBN.
// AvailableCopies never exceeds TotalCopies and never goes negative.
type Book struct {
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	PublicationYear int    `json:"publication_year"`
	Genre           string `json:"genre,omitempty"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
}

// NewBook validates the inputs and creates a book with all copies on the
// shelf. The ISBN is normalized and must pass the ISBN-10 or ISBN-13
// checksum; the year must fall in [1, current year].
func NewBook(isbn, title, author string, year, totalCopies int, genre string) (*Book, error) {
	isbn = NormalizeISBN(isbn)
	if !ValidISBN(isbn) {
		return nil, ErrInvalidISBN
	}
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	if strings.TrimSpace(author) == "" {
		return nil, ErrEmptyAuthor
	}
	if year < 1 || year > time.Now().Year() {
		return nil, ErrInvalidYear
	}
	if totalCopies < 1 {
		return nil, ErrNonPositiveCopy
	}
	return &Book{
		ISBN:            isbn,
		Title:           title,
		Author:          author,
		PublicationYear: year,
		Genre:           genre,
		TotalCopies:     totalCopies,
		AvailableCopies: totalCopies,
	}, nil
}

// CheckoutCopy takes one copy off the shelf.
func (b *Book) CheckoutCopy() error {
	if b.AvailableCopies <= 0 {
		return ErrNoCopiesAvailable
	}
	b.AvailableCopies--
	return nil
}

// ReturnCopy puts one copy back on the shelf.
func (b *Book) ReturnCopy() error {
	if b.AvailableCopies >= b.TotalCopies {
		return ErrOverReturn
	}
	b.AvailableCopies++
	return nil
}

// AddCopies grows both the total and available counts by n.
func (b *Book) AddCopies(n int) error {
	if n <= 0 {
		return ErrNonPositiveCopy
	}
	b.TotalCopies += n
	b.AvailableCopies += n
	return nil
}

// RemoveCopies shrinks both counts by n. Only copies currently on the
// shelf can be removed.
func (b *Book) RemoveCopies(n int) error {
	if n <= 0 {
		return ErrNonPositiveCopy
	}
	if n > b.AvailableCopies {
		return ErrInsufficientCopies
	}
	b.TotalCopies -= n
	b.AvailableCopies -= n
	return nil
}

// LoanRecord is one entry in a member's borrowing history. ReturnedAt is
// nil while the loan is open; a return fills it in on the existing entry
// rather than appending a second one.
type LoanRecord struct {
	ISBN         string     `json:"isbn"`
	CheckedOutAt time.Time  `json:"checked_out_at"`
	DueAt        time.Time  `json:"due_at"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
}

// Overdue reports whether the record is still open and past due as of the
// given moment.
func (r *LoanRecord) Overdue(asOf time.Time) bool {
	return r.ReturnedAt == nil && asOf.After(r.DueAt)
}

// Member is a registered borrower, identified by a generated id. History
// is append-only and never pruned.
type Member struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	RegisteredAt time.Time    `json:"registered_at"`
	History      []LoanRecord `json:"history"`
}

// NewMember validates name and email and registers a member. The email is
// trimmed and lower-cased before storage.
func NewMember(name, email string, registeredAt time.Time) (*Member, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	return &Member{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		RegisteredAt: registeredAt,
	}, nil
}

// AddToHistory appends a borrowing record.
func (m *Member) AddToHistory(rec LoanRecord) {
	m.History = append(m.History, rec)
}

// CurrentLoans returns the history entries that are still open.
func (m *Member) CurrentLoans() []LoanRecord {
	var open []LoanRecord
	for _, rec := range m.History {
		if rec.ReturnedAt == nil {
			open = append(open, rec)
		}
	}
	return open
}

// OverdueLoans returns the open history entries whose due date has passed.
func (m *Member) OverdueLoans(asOf time.Time) []LoanRecord {
	var overdue []LoanRecord
	for _, rec := range m.History {
		if rec.Overdue(asOf) {
			overdue = append(overdue, rec)
		}
	}
	return overdue
}

// LateFees sums the accrued fee across all overdue loans as of the given
// moment, at dailyRate per whole overdue day.
func (m *Member) LateFees(asOf time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range m.OverdueLoans(asOf) {
		total = total.Add(lateFee(rec.DueAt, asOf, dailyRate))
	}
	return total
}

// closeHistoryRecord sets the return date on the oldest open entry for the
// ISBN. History order is append order, so the oldest entry is the earliest
// outstanding checkout.
func (m *Member) closeHistoryRecord(isbn string, returnedAt time.Time) bool {
	for i := range m.History {
		if m.History[i].ISBN == isbn && m.History[i].ReturnedAt == nil {
			t := returnedAt
			m.History[i].ReturnedAt = &t
			return true
		}
	}
	return false
}

// Loan tracks one checked-out copy from checkout to return.
type Loan struct {
	ID           string     `json:"id"`
	ISBN         string     `json:"isbn"`
	MemberID     string     `json:"member_id"`
	CheckedOutAt time.Time  `json:"checked_out_at"`
	DueAt        time.Time  `json:"due_at"`
	ReturnedAt   *time.Time `json:"returned_at,omitempty"`
	// FineAmount is zero while the loan is active; Return freezes the
	// value computed at return time and it is never recalculated.
	FineAmount decimal.Decimal `json:"fine_amount"`
}

// NewLoan creates an active loan due one borrowing period after checkout.
func NewLoan(isbn, memberID string, checkedOutAt time.Time, period time.Duration) (*Loan, error) {
	if isbn == "" || memberID == "" {
		return nil, ErrEmptyID
	}
	return &Loan{
		ID:           uuid.NewString(),
		ISBN:         isbn,
		MemberID:     memberID,
		CheckedOutAt: checkedOutAt,
		DueAt:        checkedOutAt.Add(period),
		FineAmount:   decimal.Zero,
	}, nil
}

// Returned reports whether the loan has been closed.
func (l *Loan) Returned() bool { return l.ReturnedAt != nil }

// Overdue reports whether the loan is active and past due as of the given
// moment.
func (l *Loan) Overdue(asOf time.Time) bool {
	return !l.Returned() && asOf.After(l.DueAt)
}

// Return closes the loan and freezes the late fee accrued up to the return
// date. Returning an already-returned loan fails.
func (l *Loan) Return(at time.Time, dailyRate decimal.Decimal) error {
	if l.Returned() {
		return ErrAlreadyReturned
	}
	l.FineAmount = lateFee(l.DueAt, at, dailyRate)
	t := at
	l.ReturnedAt = &t
	return nil
}

// Reservation holds a book for a member until the hold period lapses.
type Reservation struct {
	ID         string    `json:"id"`
	ISBN       string    `json:"isbn"`
	MemberID   string    `json:"member_id"`
	ReservedAt time.Time `json:"reserved_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Fulfilled  bool      `json:"fulfilled"`
}

// NewReservation creates an active reservation expiring one hold period
// after it is placed.
func NewReservation(isbn, memberID string, reservedAt time.Time, hold time.Duration) (*Reservation, error) {
	if isbn == "" || memberID == "" {
		return nil, ErrEmptyID
	}
	return &Reservation{
		ID:         uuid.NewString(),
		ISBN:       isbn,
		MemberID:   memberID,
		ReservedAt: reservedAt,
		ExpiresAt:  reservedAt.Add(hold),
	}, nil
}

// Fulfill marks the reservation satisfied. Fulfilled is terminal.
func (r *Reservation) Fulfill() error {
	if r.Fulfilled {
		return ErrAlreadyFulfilled
	}
	r.Fulfilled = true
	return nil
}

// Expired reports whether the hold lapsed without ever being fulfilled.
func (r *Reservation) Expired(asOf time.Time) bool {
	return !r.Fulfilled && asOf.After(r.ExpiresAt)
}

// Active reports whether the reservation is still waiting: neither
// fulfilled nor expired.
func (r *Reservation) Active(asOf time.Time) bool {
	return !r.Fulfilled && !asOf.After(r.ExpiresAt)
}

// lateFee charges dailyRate per whole day between due and returned.
// Partial days truncate; returning early or on time costs nothing.
func lateFee(due, returned time.Time, dailyRate decimal.Decimal) decimal.Decimal {
	days := int64(returned.Sub(due).Hours() / 24)
	if days <= 0 {
		return decimal.Zero
	}
	return dailyRate.Mul(decimal.NewFromInt(days))
}
