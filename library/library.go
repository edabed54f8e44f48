package library

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Circulation defaults. All of them are injectable through Config so tests
// never have to patch package state.
const (
	// DefaultBorrowingPeriod is how long a member may keep a book before
	// fines accrue.
	DefaultBorrowingPeriod = 14 * 24 * time.Hour

	// DefaultHoldPeriod is how long a reservation waits before expiring.
	DefaultHoldPeriod = 3 * 24 * time.Hour

	// DefaultDataDir is where the collection files live when no directory
	// is configured.
	DefaultDataDir = "data"
)

// DefaultDailyFineRate is the fine charged per whole overdue day.
var DefaultDailyFineRate = decimal.NewFromInt(10)

// Config carries the knobs for a Library. The zero value is usable: every
// field falls back to its default.
type Config struct {
	DataDir         string
	BorrowingPeriod time.Duration
	HoldPeriod      time.Duration
	DailyFineRate   decimal.Decimal
	Clock           func() time.Time
	Logger          Logger
}

// Library orchestrates the catalog workflows across books, members, loans,
// and reservations. It owns every decision to create, mutate, or delete an
// entity; the Store only persists snapshots.
type Library struct {
	store  *Store
	logger Logger

	borrowingPeriod time.Duration
	holdPeriod      time.Duration
	dailyFineRate   decimal.Decimal
	now             func() time.Time
}

// New opens (or creates) the catalog under cfg.DataDir.
func New(cfg Config) (*Library, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.BorrowingPeriod == 0 {
		cfg.BorrowingPeriod = DefaultBorrowingPeriod
	}
	if cfg.HoldPeriod == 0 {
		cfg.HoldPeriod = DefaultHoldPeriod
	}
	if cfg.DailyFineRate.IsZero() {
		cfg.DailyFineRate = DefaultDailyFineRate
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNopLogger()
	}

	store, err := NewStore(cfg.DataDir, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Library{
		store:           store,
		logger:          cfg.Logger,
		borrowingPeriod: cfg.BorrowingPeriod,
		holdPeriod:      cfg.HoldPeriod,
		dailyFineRate:   cfg.DailyFineRate,
		now:             cfg.Clock,
	}, nil
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

// AddBook adds a title to the catalog. Adding an ISBN that already exists
// merges: the existing book gains the new copies instead of a second entity
// being created.
func (l *Library) AddBook(isbn, title, author string, year, copies int, genre string) (*Book, error) {
	key := NormalizeISBN(isbn)
	if existing, ok := l.store.Book(key); ok {
		if err := existing.AddCopies(copies); err != nil {
			l.logger.Error("add book failed", "isbn", key, "error", err.Error())
			return nil, err
		}
		if err := l.store.SaveBook(existing); err != nil {
			l.logger.Error("add book failed", "isbn", key, "error", err.Error())
			return nil, err
		}
		l.logger.Info("book copies added", "isbn", key, "copies", copies, "total", existing.TotalCopies)
		return existing, nil
	}

	book, err := NewBook(isbn, title, author, year, copies, genre)
	if err != nil {
		l.logger.Error("add book failed", "isbn", isbn, "error", err.Error())
		return nil, err
	}
	if err := l.store.SaveBook(book); err != nil {
		l.logger.Error("add book failed", "isbn", book.ISBN, "error", err.Error())
		return nil, err
	}
	l.logger.Info("book added", "isbn", book.ISBN, "title", book.Title, "copies", book.TotalCopies)
	return book, nil
}

// RemoveBook deletes a title outright. A book with copies still checked
// out cannot be removed.
func (l *Library) RemoveBook(isbn string) error {
	key := NormalizeISBN(isbn)
	if _, ok := l.store.Book(key); !ok {
		l.logger.Error("remove book failed", "isbn", key, "error", ErrBookNotFound.Error())
		return ErrBookNotFound
	}
	for _, loan := range l.store.LoansForBook(key) {
		if !loan.Returned() {
			l.logger.Error("remove book failed", "isbn", key, "error", ErrBookHasActiveLoans.Error())
			return ErrBookHasActiveLoans
		}
	}
	if err := l.store.RemoveBook(key); err != nil {
		l.logger.Error("remove book failed", "isbn", key, "error", err.Error())
		return err
	}
	l.logger.Info("book removed", "isbn", key)
	return nil
}

// Book looks up a single title by ISBN.
func (l *Library) Book(isbn string) (*Book, error) {
	b, ok := l.store.Book(NormalizeISBN(isbn))
	if !ok {
		return nil, ErrBookNotFound
	}
	return b, nil
}

// Books lists the whole catalog in ISBN order.
func (l *Library) Books() []*Book { return l.store.Books() }

// SearchBooks matches the query as a case-insensitive substring of title,
// author, or genre. An empty query matches nothing.
func (l *Library) SearchBooks(query string) []*Book {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var matches []*Book
	for _, b := range l.store.Books() {
		if strings.Contains(strings.ToLower(b.Title), query) ||
			strings.Contains(strings.ToLower(b.Author), query) ||
			(b.Genre != "" && strings.Contains(strings.ToLower(b.Genre), query)) {
			matches = append(matches, b)
		}
	}
	return matches
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// RegisterMember adds a borrower to the catalog.
func (l *Library) RegisterMember(name, email string) (*Member, error) {
	member, err := NewMember(name, email, l.now())
	if err != nil {
		l.logger.Error("register member failed", "name", name, "error", err.Error())
		return nil, err
	}
	if err := l.store.SaveMember(member); err != nil {
		l.logger.Error("register member failed", "member_id", member.ID, "error", err.Error())
		return nil, err
	}
	l.logger.Info("member registered", "member_id", member.ID, "email", member.Email)
	return member, nil
}

// Member looks up a single member by id.
func (l *Library) Member(id string) (*Member, error) {
	m, ok := l.store.Member(id)
	if !ok {
		return nil, ErrMemberNotFound
	}
	return m, nil
}

// Members lists every registered member in id order.
func (l *Library) Members() []*Member { return l.store.Members() }

// ---------------------------------------------------------------------------
// Circulation
// ---------------------------------------------------------------------------

// CheckoutBook lends a copy to the member. When every copy is already out
// it places a reservation instead and returns it alongside
// ErrNoAvailableCopy, so the caller can tell a loan from a "you are in the
// queue" outcome without parsing messages.
func (l *Library) CheckoutBook(isbn, memberID string) (*Loan, *Reservation, error) {
	key := NormalizeISBN(isbn)
	book, ok := l.store.Book(key)
	if !ok {
		l.logger.Error("checkout failed", "isbn", key, "error", ErrBookNotFound.Error())
		return nil, nil, ErrBookNotFound
	}
	member, ok := l.store.Member(memberID)
	if !ok {
		l.logger.Error("checkout failed", "isbn", key, "member_id", memberID, "error", ErrMemberNotFound.Error())
		return nil, nil, ErrMemberNotFound
	}

	if book.AvailableCopies <= 0 {
		res, err := l.ReserveBook(key, memberID)
		if err != nil {
			return nil, nil, err
		}
		l.logger.Info("checkout queued as reservation", "isbn", key, "member_id", memberID, "reservation_id", res.ID)
		return nil, res, fmt.Errorf("%w (reservation %s)", ErrNoAvailableCopy, res.ID)
	}

	if err := book.CheckoutCopy(); err != nil {
		l.logger.Error("checkout failed", "isbn", key, "member_id", memberID, "error", err.Error())
		return nil, nil, err
	}
	loan, err := NewLoan(key, memberID, l.now(), l.borrowingPeriod)
	if err != nil {
		l.logger.Error("checkout failed", "isbn", key, "member_id", memberID, "error", err.Error())
		return nil, nil, err
	}
	member.AddToHistory(LoanRecord{
		ISBN:         key,
		CheckedOutAt: loan.CheckedOutAt,
		DueAt:        loan.DueAt,
	})

	if err := l.persist(book, loan, member); err != nil {
		l.logger.Error("checkout failed", "isbn", key, "member_id", memberID, "error", err.Error())
		return nil, nil, err
	}
	l.logger.Info("book checked out", "isbn", key, "member_id", memberID, "loan_id", loan.ID, "due_at", loan.DueAt)
	return loan, nil, nil
}

// ReturnBook closes the member's active loan for the ISBN, freezing its
// fine, restores the copy, and then fulfills at most one waiting
// reservation for the title. Fulfillment only flips the flag: the reserving
// member still has to come and check the book out.
func (l *Library) ReturnBook(isbn, memberID string) (*Loan, error) {
	key := NormalizeISBN(isbn)
	book, ok := l.store.Book(key)
	if !ok {
		l.logger.Error("return failed", "isbn", key, "error", ErrBookNotFound.Error())
		return nil, ErrBookNotFound
	}
	member, ok := l.store.Member(memberID)
	if !ok {
		l.logger.Error("return failed", "isbn", key, "member_id", memberID, "error", ErrMemberNotFound.Error())
		return nil, ErrMemberNotFound
	}

	// A member can hold several copies of the same title at once. Close
	// the oldest active loan, mirroring closeHistoryRecord picking the
	// oldest open history entry, so the loan ledger and the history agree
	// about which checkout remains open.
	var loan *Loan
	for _, candidate := range l.store.LoansForMember(memberID) {
		if candidate.ISBN != key || candidate.Returned() {
			continue
		}
		if loan == nil || candidate.CheckedOutAt.Before(loan.CheckedOutAt) {
			loan = candidate
		}
	}
	if loan == nil {
		l.logger.Error("return failed", "isbn", key, "member_id", memberID, "error", ErrNoActiveLoan.Error())
		return nil, ErrNoActiveLoan
	}

	now := l.now()
	if err := loan.Return(now, l.dailyFineRate); err != nil {
		l.logger.Error("return failed", "loan_id", loan.ID, "error", err.Error())
		return nil, err
	}
	if err := book.ReturnCopy(); err != nil {
		l.logger.Error("return failed", "loan_id", loan.ID, "error", err.Error())
		return nil, err
	}
	member.closeHistoryRecord(key, now)

	if err := l.persist(book, loan, member); err != nil {
		l.logger.Error("return failed", "loan_id", loan.ID, "error", err.Error())
		return nil, err
	}
	l.logger.Info("book returned", "isbn", key, "member_id", memberID, "loan_id", loan.ID, "fine", loan.FineAmount.String())

	// Hand the title to the next member in the hold queue, oldest active
	// reservation first. Reservations that expired before this moment are
	// never fulfilled; the cleanup sweep is the only thing that touches
	// them.
	if queue := l.store.ReservationsForBook(key, now); len(queue) > 0 {
		next := queue[0]
		if err := next.Fulfill(); err != nil {
			return nil, err
		}
		if err := l.store.SaveReservation(next); err != nil {
			l.logger.Error("reservation fulfillment failed", "reservation_id", next.ID, "error", err.Error())
			return nil, err
		}
		l.logger.Info("reservation fulfilled", "isbn", key, "reservation_id", next.ID, "member_id", next.MemberID)
	}
	return loan, nil
}

// ReserveBook places a hold for the member. Copy availability is
// deliberately not checked: a reservation may be placed even while copies
// sit on the shelf. A member cannot hold two active reservations for the
// same title.
func (l *Library) ReserveBook(isbn, memberID string) (*Reservation, error) {
	key := NormalizeISBN(isbn)
	if _, ok := l.store.Book(key); !ok {
		l.logger.Error("reserve failed", "isbn", key, "error", ErrBookNotFound.Error())
		return nil, ErrBookNotFound
	}
	if _, ok := l.store.Member(memberID); !ok {
		l.logger.Error("reserve failed", "isbn", key, "member_id", memberID, "error", ErrMemberNotFound.Error())
		return nil, ErrMemberNotFound
	}

	now := l.now()
	for _, r := range l.store.ReservationsForMember(memberID) {
		if r.ISBN == key && r.Active(now) {
			l.logger.Error("reserve failed", "isbn", key, "member_id", memberID, "error", ErrDuplicateReservation.Error())
			return nil, ErrDuplicateReservation
		}
	}

	res, err := NewReservation(key, memberID, now, l.holdPeriod)
	if err != nil {
		l.logger.Error("reserve failed", "isbn", key, "member_id", memberID, "error", err.Error())
		return nil, err
	}
	if err := l.store.SaveReservation(res); err != nil {
		l.logger.Error("reserve failed", "reservation_id", res.ID, "error", err.Error())
		return nil, err
	}
	l.logger.Info("book reserved", "isbn", key, "member_id", memberID, "reservation_id", res.ID, "expires_at", res.ExpiresAt)
	return res, nil
}

// CleanupExpiredReservations removes every reservation whose hold lapsed
// without fulfillment and reports how many went. Fulfilled reservations
// are never removed, no matter how old.
func (l *Library) CleanupExpiredReservations() (int, error) {
	now := l.now()
	removed := 0
	for _, r := range l.store.Reservations() {
		if !r.Expired(now) {
			continue
		}
		if err := l.store.RemoveReservation(r.ID); err != nil {
			l.logger.Error("reservation cleanup failed", "reservation_id", r.ID, "error", err.Error())
			return removed, err
		}
		removed++
	}
	l.logger.Info("expired reservations removed", "count", removed)
	return removed, nil
}

// persist writes the book, loan, and member snapshots touched by a
// circulation step. There is no rollback: a failed write leaves the
// in-memory state mutated, and the error tells the caller to treat the
// operation as fatal.
func (l *Library) persist(book *Book, loan *Loan, member *Member) error {
	if err := l.store.SaveBook(book); err != nil {
		return err
	}
	if err := l.store.SaveLoan(loan); err != nil {
		return err
	}
	return l.store.SaveMember(member)
}

// ---------------------------------------------------------------------------
// Reporting
// ---------------------------------------------------------------------------

// OverdueReport is one member's overdue position.
type OverdueReport struct {
	Member    *Member
	Loans     []LoanRecord
	TotalFine decimal.Decimal
}

// MembersWithOverdueBooks reports every member holding at least one
// overdue book, with their overdue records and the fee accrued so far.
func (l *Library) MembersWithOverdueBooks() []OverdueReport {
	now := l.now()
	var reports []OverdueReport
	for _, m := range l.store.Members() {
		overdue := m.OverdueLoans(now)
		if len(overdue) == 0 {
			continue
		}
		reports = append(reports, OverdueReport{
			Member:    m,
			Loans:     overdue,
			TotalFine: m.LateFees(now, l.dailyFineRate),
		})
	}
	return reports
}

// BookBorrowCount pairs a title with how often it has been borrowed.
type BookBorrowCount struct {
	ISBN  string
	Title string
	Count int
}

// MemberActivity pairs a member with their lifetime borrow count.
type MemberActivity struct {
	Member *Member
	Count  int
}

// Stats is a point-in-time aggregate over the whole catalog. On an empty
// catalog every count is zero, TopBooks is empty, and MostActiveMember is
// nil.
type Stats struct {
	TotalBooks         int
	TotalMembers       int
	ActiveLoans        int
	ActiveReservations int
	TopBooks           []BookBorrowCount
	MostActiveMember   *MemberActivity
}

// Statistics aggregates catalog totals, the five most-borrowed titles
// (ties broken by ISBN), and the member with the most borrows (ties broken
// by first encountered in member-id order).
func (l *Library) Statistics() Stats {
	now := l.now()
	stats := Stats{
		TotalBooks:         len(l.store.Books()),
		TotalMembers:       len(l.store.Members()),
		ActiveLoans:        len(l.store.ActiveLoans()),
		ActiveReservations: len(l.store.ActiveReservations(now)),
	}

	counts := make(map[string]int)
	for _, loan := range l.store.Loans() {
		counts[loan.ISBN]++
	}
	for isbn, count := range counts {
		entry := BookBorrowCount{ISBN: isbn, Count: count}
		if b, ok := l.store.Book(isbn); ok {
			entry.Title = b.Title
		}
		stats.TopBooks = append(stats.TopBooks, entry)
	}
	sort.Slice(stats.TopBooks, func(i, j int) bool {
		if stats.TopBooks[i].Count != stats.TopBooks[j].Count {
			return stats.TopBooks[i].Count > stats.TopBooks[j].Count
		}
		return stats.TopBooks[i].ISBN < stats.TopBooks[j].ISBN
	})
	if len(stats.TopBooks) > 5 {
		stats.TopBooks = stats.TopBooks[:5]
	}

	for _, m := range l.store.Members() {
		if n := len(m.History); n > 0 {
			if stats.MostActiveMember == nil || n > stats.MostActiveMember.Count {
				stats.MostActiveMember = &MemberActivity{Member: m, Count: n}
			}
		}
	}
	return stats
}

// HistoryEntry is one borrowing-history record enriched with the book's
// current title and author. Both stay empty when the book has since been
// removed from the catalog.
type HistoryEntry struct {
	LoanRecord
	Title  string
	Author string
}

// MemberBorrowingHistory returns the member's full history, oldest first.
func (l *Library) MemberBorrowingHistory(memberID string) ([]HistoryEntry, error) {
	member, ok := l.store.Member(memberID)
	if !ok {
		return nil, ErrMemberNotFound
	}
	entries := make([]HistoryEntry, 0, len(member.History))
	for _, rec := range member.History {
		entry := HistoryEntry{LoanRecord: rec}
		if b, ok := l.store.Book(rec.ISBN); ok {
			entry.Title = b.Title
			entry.Author = b.Author
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
