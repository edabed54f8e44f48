package library

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock so tests never depend on wall
// time or patched constants.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func tempLibrary(t *testing.T) (*Library, *testClock) {
	t.Helper()
	clock := &testClock{now: testTime}
	lib, err := New(Config{
		DataDir: t.TempDir(),
		Clock:   clock.Now,
		Logger:  NewNopLogger(),
	})
	require.NoError(t, err)
	return lib, clock
}

func addCleanCode(t *testing.T, lib *Library, copies int) *Book {
	t.Helper()
	book, err := lib.AddBook("9780132350884", "Clean Code", "Robert C. Martin", 2008, copies, "Software")
	require.NoError(t, err)
	return book
}

func registerMember(t *testing.T, lib *Library, name, email string) *Member {
	t.Helper()
	m, err := lib.RegisterMember(name, email)
	require.NoError(t, err)
	return m
}

func TestAddBookMergesOnISBN(t *testing.T) {
	lib, _ := tempLibrary(t)

	first := addCleanCode(t, lib, 2)
	// Same ISBN, different punctuation: copies accumulate, no new entity.
	second, err := lib.AddBook("978-0-13-235088-4", "Clean Code", "Robert C. Martin", 2008, 3, "Software")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 5, second.TotalCopies)
	assert.Equal(t, 5, second.AvailableCopies)
	assert.Len(t, lib.Books(), 1)
}

func TestCheckoutThenReturnRestoresAvailability(t *testing.T) {
	lib, _ := tempLibrary(t)
	book := addCleanCode(t, lib, 2)
	member := registerMember(t, lib, "Alice", "alice@example.com")

	loan, res, err := lib.CheckoutBook(book.ISBN, member.ID)
	require.NoError(t, err)
	require.Nil(t, res)
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Equal(t, testTime.Add(DefaultBorrowingPeriod), loan.DueAt)
	require.Len(t, member.History, 1)
	assert.Nil(t, member.History[0].ReturnedAt)

	returned, err := lib.ReturnBook(book.ISBN, member.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, book.AvailableCopies)
	assert.True(t, returned.FineAmount.IsZero())
	require.NotNil(t, member.History[0].ReturnedAt, "return closes the history entry in place")
	assert.Len(t, member.History, 1, "no second entry appended")
}

func TestCheckoutNotFound(t *testing.T) {
	lib, _ := tempLibrary(t)
	member := registerMember(t, lib, "Alice", "alice@example.com")

	_, _, err := lib.CheckoutBook("9780132350884", member.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	addCleanCode(t, lib, 1)
	_, _, err = lib.CheckoutBook("9780132350884", "no-such-member")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

// Full circulation scenario: one copy, second borrower queues, return
// hands the title to the queued reservation.
func TestCheckoutFallsBackToReservation(t *testing.T) {
	lib, _ := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	alice := registerMember(t, lib, "Alice", "alice@example.com")
	bob := registerMember(t, lib, "Bob", "bob@example.com")

	_, _, err := lib.CheckoutBook(book.ISBN, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, book.AvailableCopies)

	loan, res, err := lib.CheckoutBook(book.ISBN, bob.ID)
	assert.ErrorIs(t, err, ErrNoAvailableCopy)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Nil(t, loan)
	require.NotNil(t, res, "the fallback reservation comes back with the error")
	assert.Equal(t, bob.ID, res.MemberID)
	assert.True(t, res.Active(testTime))
	assert.False(t, res.Fulfilled)

	_, err = lib.ReturnBook(book.ISBN, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, book.AvailableCopies)
	assert.True(t, res.Fulfilled, "the waiting reservation is fulfilled by the return")
}

func TestReturnFulfillsOldestActiveReservationOnly(t *testing.T) {
	lib, clock := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	alice := registerMember(t, lib, "Alice", "alice@example.com")
	bob := registerMember(t, lib, "Bob", "bob@example.com")
	carol := registerMember(t, lib, "Carol", "carol@example.com")

	_, _, err := lib.CheckoutBook(book.ISBN, alice.ID)
	require.NoError(t, err)

	bobRes, err := lib.ReserveBook(book.ISBN, bob.ID)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	carolRes, err := lib.ReserveBook(book.ISBN, carol.ID)
	require.NoError(t, err)

	_, err = lib.ReturnBook(book.ISBN, alice.ID)
	require.NoError(t, err)
	assert.True(t, bobRes.Fulfilled, "oldest reservation wins")
	assert.False(t, carolRes.Fulfilled, "at most one fulfillment per return")
}

func TestReturnSkipsExpiredReservations(t *testing.T) {
	lib, clock := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	alice := registerMember(t, lib, "Alice", "alice@example.com")
	bob := registerMember(t, lib, "Bob", "bob@example.com")

	_, _, err := lib.CheckoutBook(book.ISBN, alice.ID)
	require.NoError(t, err)
	res, err := lib.ReserveBook(book.ISBN, bob.ID)
	require.NoError(t, err)

	// The hold lapses before the copy comes back.
	clock.Advance(DefaultHoldPeriod + time.Hour)
	_, err = lib.ReturnBook(book.ISBN, alice.ID)
	require.NoError(t, err)
	assert.False(t, res.Fulfilled, "expired holds are never fulfilled")
}

func TestReturnWithoutActiveLoan(t *testing.T) {
	lib, _ := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	member := registerMember(t, lib, "Alice", "alice@example.com")

	_, err := lib.ReturnBook(book.ISBN, member.ID)
	assert.ErrorIs(t, err, ErrNoActiveLoan)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReturnComputesLateFee(t *testing.T) {
	lib, clock := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	member := registerMember(t, lib, "Alice", "alice@example.com")

	_, _, err := lib.CheckoutBook(book.ISBN, member.ID)
	require.NoError(t, err)

	// Checked out 20 days ago: 6 whole days past the 14-day period.
	clock.Advance(20 * 24 * time.Hour)
	loan, err := lib.ReturnBook(book.ISBN, member.ID)
	require.NoError(t, err)
	assert.True(t, loan.FineAmount.Equal(decimal.NewFromInt(60)),
		"want 60, got %s", loan.FineAmount)

	// Frozen: advancing the clock further changes nothing.
	clock.Advance(30 * 24 * time.Hour)
	assert.True(t, loan.FineAmount.Equal(decimal.NewFromInt(60)))
}

// A member holding two copies of the same title returns them oldest
// checkout first, and the loan ledger closes the same checkout the
// history does.
func TestReturnClosesOldestLoanForSameISBN(t *testing.T) {
	lib, clock := tempLibrary(t)
	book := addCleanCode(t, lib, 2)
	member := registerMember(t, lib, "Alice", "alice@example.com")

	first, _, err := lib.CheckoutBook(book.ISBN, member.ID)
	require.NoError(t, err)
	clock.Advance(10 * 24 * time.Hour)
	second, _, err := lib.CheckoutBook(book.ISBN, member.ID)
	require.NoError(t, err)

	// Day 20: the first copy is 6 days late, the second is not due yet.
	clock.Advance(10 * 24 * time.Hour)
	returned, err := lib.ReturnBook(book.ISBN, member.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, returned.ID, "oldest checkout is closed first")
	assert.True(t, returned.FineAmount.Equal(decimal.NewFromInt(60)),
		"want 60, got %s", returned.FineAmount)
	assert.False(t, second.Returned())

	// Loan ledger and history agree: the open record is the day-10 one.
	require.NotNil(t, member.History[0].ReturnedAt)
	assert.Nil(t, member.History[1].ReturnedAt)
	assert.True(t, member.History[1].CheckedOutAt.Equal(second.CheckedOutAt))

	returned, err = lib.ReturnBook(book.ISBN, member.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, returned.ID)
	assert.True(t, returned.FineAmount.IsZero())
	assert.Equal(t, 2, book.AvailableCopies)
}

func TestDuplicateReservation(t *testing.T) {
	lib, clock := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	member := registerMember(t, lib, "Alice", "alice@example.com")

	_, err := lib.ReserveBook(book.ISBN, member.ID)
	require.NoError(t, err, "reservations may be placed even while copies exist")

	_, err = lib.ReserveBook(book.ISBN, member.ID)
	assert.ErrorIs(t, err, ErrDuplicateReservation)
	assert.ErrorIs(t, err, ErrConflict)

	// Once the first hold expires, reserving again is allowed.
	clock.Advance(DefaultHoldPeriod + time.Hour)
	_, err = lib.ReserveBook(book.ISBN, member.ID)
	assert.NoError(t, err)
}

func TestReserveAgainAfterFulfillment(t *testing.T) {
	lib, _ := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	alice := registerMember(t, lib, "Alice", "alice@example.com")
	bob := registerMember(t, lib, "Bob", "bob@example.com")

	_, _, err := lib.CheckoutBook(book.ISBN, alice.ID)
	require.NoError(t, err)
	first, err := lib.ReserveBook(book.ISBN, bob.ID)
	require.NoError(t, err)

	_, err = lib.ReturnBook(book.ISBN, alice.ID)
	require.NoError(t, err)
	require.True(t, first.Fulfilled)

	_, err = lib.ReserveBook(book.ISBN, bob.ID)
	assert.NoError(t, err, "a fulfilled hold does not block a new one")
}

func TestCleanupExpiredReservations(t *testing.T) {
	lib, clock := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	alice := registerMember(t, lib, "Alice", "alice@example.com")
	bob := registerMember(t, lib, "Bob", "bob@example.com")

	fulfilled, err := lib.ReserveBook(book.ISBN, alice.ID)
	require.NoError(t, err)
	require.NoError(t, fulfilled.Fulfill())
	require.NoError(t, lib.store.SaveReservation(fulfilled))

	_, err = lib.ReserveBook(book.ISBN, bob.ID)
	require.NoError(t, err)

	// Nothing has expired yet.
	removed, err := lib.CleanupExpiredReservations()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	// Far past every expiration date: only the never-fulfilled hold goes.
	clock.Advance(365 * 24 * time.Hour)
	removed, err = lib.CleanupExpiredReservations()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining := lib.store.Reservations()
	require.Len(t, remaining, 1)
	assert.Equal(t, fulfilled.ID, remaining[0].ID)
}

func TestRemoveBook(t *testing.T) {
	lib, _ := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	member := registerMember(t, lib, "Alice", "alice@example.com")

	assert.ErrorIs(t, lib.RemoveBook("0451524934"), ErrBookNotFound)

	_, _, err := lib.CheckoutBook(book.ISBN, member.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, lib.RemoveBook(book.ISBN), ErrBookHasActiveLoans)

	_, err = lib.ReturnBook(book.ISBN, member.ID)
	require.NoError(t, err)
	require.NoError(t, lib.RemoveBook(book.ISBN))
	assert.Empty(t, lib.Books())
}

func TestSearchBooks(t *testing.T) {
	lib, _ := tempLibrary(t)
	addCleanCode(t, lib, 1)
	_, err := lib.AddBook("0451524934", "1984", "George Orwell", 1949, 1, "Dystopia")
	require.NoError(t, err)
	_, err = lib.AddBook("9780441013593", "Dune", "Frank Herbert", 1965, 1, "")
	require.NoError(t, err)

	assert.Len(t, lib.SearchBooks("clean"), 1, "title match, case-insensitive")
	assert.Len(t, lib.SearchBooks("ORWELL"), 1, "author match")
	assert.Len(t, lib.SearchBooks("dystopia"), 1, "genre match")
	assert.Empty(t, lib.SearchBooks("python"))
	assert.Empty(t, lib.SearchBooks("   "), "blank query matches nothing")
	// Books without a genre are skipped for genre matching but still
	// searchable by title.
	assert.Len(t, lib.SearchBooks("dune"), 1)
}

func TestMembersWithOverdueBooks(t *testing.T) {
	lib, clock := tempLibrary(t)
	book := addCleanCode(t, lib, 2)
	late := registerMember(t, lib, "Alice", "alice@example.com")
	punctual := registerMember(t, lib, "Bob", "bob@example.com")

	_, _, err := lib.CheckoutBook(book.ISBN, late.ID)
	require.NoError(t, err)

	clock.Advance(16 * 24 * time.Hour)
	_, _, err = lib.CheckoutBook(book.ISBN, punctual.ID)
	require.NoError(t, err)

	reports := lib.MembersWithOverdueBooks()
	require.Len(t, reports, 1)
	assert.Equal(t, late.ID, reports[0].Member.ID)
	require.Len(t, reports[0].Loans, 1)
	// 2 whole days past the 14-day period at 10 per day.
	assert.True(t, reports[0].TotalFine.Equal(decimal.NewFromInt(20)),
		"want 20, got %s", reports[0].TotalFine)
}

func TestStatisticsEmptyLibrary(t *testing.T) {
	lib, _ := tempLibrary(t)
	stats := lib.Statistics()
	assert.Zero(t, stats.TotalBooks)
	assert.Zero(t, stats.TotalMembers)
	assert.Zero(t, stats.ActiveLoans)
	assert.Zero(t, stats.ActiveReservations)
	assert.Empty(t, stats.TopBooks)
	assert.Nil(t, stats.MostActiveMember)
}

func TestStatistics(t *testing.T) {
	lib, _ := tempLibrary(t)
	clean := addCleanCode(t, lib, 3)
	_, err := lib.AddBook("0451524934", "1984", "George Orwell", 1949, 2, "Dystopia")
	require.NoError(t, err)

	alice := registerMember(t, lib, "Alice", "alice@example.com")
	bob := registerMember(t, lib, "Bob", "bob@example.com")

	// Alice borrows Clean Code twice (borrow, return, borrow) and 1984
	// once; Bob borrows Clean Code once.
	_, _, err = lib.CheckoutBook(clean.ISBN, alice.ID)
	require.NoError(t, err)
	_, err = lib.ReturnBook(clean.ISBN, alice.ID)
	require.NoError(t, err)
	_, _, err = lib.CheckoutBook(clean.ISBN, alice.ID)
	require.NoError(t, err)
	_, _, err = lib.CheckoutBook("0451524934", alice.ID)
	require.NoError(t, err)
	_, _, err = lib.CheckoutBook(clean.ISBN, bob.ID)
	require.NoError(t, err)

	_, err = lib.ReserveBook("0451524934", bob.ID)
	require.NoError(t, err)

	stats := lib.Statistics()
	assert.Equal(t, 2, stats.TotalBooks)
	assert.Equal(t, 2, stats.TotalMembers)
	assert.Equal(t, 3, stats.ActiveLoans)
	assert.Equal(t, 1, stats.ActiveReservations)

	require.Len(t, stats.TopBooks, 2)
	assert.Equal(t, clean.ISBN, stats.TopBooks[0].ISBN)
	assert.Equal(t, "Clean Code", stats.TopBooks[0].Title)
	assert.Equal(t, 3, stats.TopBooks[0].Count)
	assert.Equal(t, 1, stats.TopBooks[1].Count)

	require.NotNil(t, stats.MostActiveMember)
	assert.Equal(t, alice.ID, stats.MostActiveMember.Member.ID)
	assert.Equal(t, 3, stats.MostActiveMember.Count)
}

func TestMemberBorrowingHistory(t *testing.T) {
	lib, _ := tempLibrary(t)
	book := addCleanCode(t, lib, 1)
	member := registerMember(t, lib, "Alice", "alice@example.com")

	_, err := lib.MemberBorrowingHistory("no-such-member")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, _, err = lib.CheckoutBook(book.ISBN, member.ID)
	require.NoError(t, err)
	_, err = lib.ReturnBook(book.ISBN, member.ID)
	require.NoError(t, err)

	entries, err := lib.MemberBorrowingHistory(member.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Clean Code", entries[0].Title)
	assert.Equal(t, "Robert C. Martin", entries[0].Author)
	assert.NotNil(t, entries[0].ReturnedAt)

	// Removing the book leaves the history entry, minus the enrichment.
	require.NoError(t, lib.RemoveBook(book.ISBN))
	entries, err = lib.MemberBorrowingHistory(member.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Title)
}

// State survives a process restart: a second Library over the same data
// directory picks up where the first left off.
func TestLibraryPersistenceAcrossReopen(t *testing.T) {
	clock := &testClock{now: testTime}
	dir := t.TempDir()
	cfg := Config{DataDir: dir, Clock: clock.Now, Logger: NewNopLogger()}

	lib, err := New(cfg)
	require.NoError(t, err)
	book := addCleanCode(t, lib, 1)
	member := registerMember(t, lib, "Alice", "alice@example.com")
	_, _, err = lib.CheckoutBook(book.ISBN, member.ID)
	require.NoError(t, err)

	reopened, err := New(cfg)
	require.NoError(t, err)
	got, err := reopened.Book(book.ISBN)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)

	loan, err := reopened.ReturnBook(book.ISBN, member.ID)
	require.NoError(t, err)
	assert.True(t, loan.FineAmount.IsZero())
	assert.Equal(t, 1, got.AvailableCopies)
}
