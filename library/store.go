package library

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Collection file names inside the data directory.
const (
	booksFile        = "books.json"
	membersFile      = "members.json"
	loansFile        = "loans.json"
	reservationsFile = "reservations.json"
)

// Store keeps the four catalog collections in memory and mirrors every
// mutation to one JSON file per collection. Each file is a JSON object
// keyed by the entity's identity. Reads never touch disk.
//
// A single mutex guards all four maps, so the store is safe for
// concurrent callers; last write still wins between two racing mutations
// of the same entity.
type Store struct {
	mu     sync.RWMutex
	dir    string
	logger Logger

	books        map[string]*Book
	members      map[string]*Member
	loans        map[string]*Loan
	reservations map[string]*Reservation
}

// NewStore loads the collections from dir, creating the directory on first
// run. A missing or unreadable collection file leaves that collection
// empty and logs a warning; construction only fails when the directory
// itself cannot be created.
func NewStore(dir string, logger Logger) (*Store, error) {
	if logger == nil {
		logger = NewNopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", ErrPersistence, err)
	}
	return &Store{
		dir:          dir,
		logger:       logger,
		books:        loadCollection[Book](filepath.Join(dir, booksFile), logger),
		members:      loadCollection[Member](filepath.Join(dir, membersFile), logger),
		loans:        loadCollection[Loan](filepath.Join(dir, loansFile), logger),
		reservations: loadCollection[Reservation](filepath.Join(dir, reservationsFile), logger),
	}, nil
}

// loadCollection reads one collection file. Absent or corrupt files are
// tolerated: the catalog starts empty rather than refusing to open.
func loadCollection[T any](path string, logger Logger) map[string]*T {
	out := make(map[string]*T)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("collection file absent, starting empty", "file", path)
		} else {
			logger.Warn("collection file unreadable, starting empty", "file", path, "error", err.Error())
		}
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.Warn("collection file corrupt, starting empty", "file", path, "error", err.Error())
		return make(map[string]*T)
	}
	return out
}

// writeCollection rewrites one collection file in full. The content goes
// to a temp file first and is renamed into place so a crash mid-write
// cannot leave a half-written collection behind.
func writeCollection[T any](path string, m map[string]*T) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrPersistence, filepath.Base(path), err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Books
// ---------------------------------------------------------------------------

// SaveBook upserts a book and rewrites the books file.
func (s *Store) SaveBook(b *Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[b.ISBN] = b
	return writeCollection(filepath.Join(s.dir, booksFile), s.books)
}

// RemoveBook deletes a book and rewrites the books file.
func (s *Store) RemoveBook(isbn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, isbn)
	return writeCollection(filepath.Join(s.dir, booksFile), s.books)
}

// Book looks up a single book by normalized ISBN.
func (s *Store) Book(isbn string) (*Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[isbn]
	return b, ok
}

// Books returns every book ordered by ISBN.
func (s *Store) Books() []*Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISBN < out[j].ISBN })
	return out
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

// SaveMember upserts a member and rewrites the members file.
func (s *Store) SaveMember(m *Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
	return writeCollection(filepath.Join(s.dir, membersFile), s.members)
}

// Member looks up a single member by id.
func (s *Store) Member(id string) (*Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	return m, ok
}

// Members returns every member ordered by id.
func (s *Store) Members() []*Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---------------------------------------------------------------------------
// Loans
// ---------------------------------------------------------------------------

// SaveLoan upserts a loan and rewrites the loans file.
func (s *Store) SaveLoan(l *Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[l.ID] = l
	return writeCollection(filepath.Join(s.dir, loansFile), s.loans)
}

// Loans returns every loan ordered by id.
func (s *Store) Loans() []*Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loansLocked(func(*Loan) bool { return true })
}

// LoansForBook returns all loans, past and present, for one ISBN.
func (s *Store) LoansForBook(isbn string) []*Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loansLocked(func(l *Loan) bool { return l.ISBN == isbn })
}

// LoansForMember returns all loans, past and present, for one member.
func (s *Store) LoansForMember(memberID string) []*Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loansLocked(func(l *Loan) bool { return l.MemberID == memberID })
}

// ActiveLoans returns the loans that have not been returned.
func (s *Store) ActiveLoans() []*Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loansLocked(func(l *Loan) bool { return !l.Returned() })
}

// loansLocked filters loans in id order. Caller must hold at least a read
// lock.
func (s *Store) loansLocked(keep func(*Loan) bool) []*Loan {
	var out []*Loan
	for _, l := range s.loans {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---------------------------------------------------------------------------
// Reservations
// ---------------------------------------------------------------------------

// SaveReservation upserts a reservation and rewrites the reservations file.
func (s *Store) SaveReservation(r *Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.ID] = r
	return writeCollection(filepath.Join(s.dir, reservationsFile), s.reservations)
}

// RemoveReservation deletes a reservation and rewrites the reservations
// file.
func (s *Store) RemoveReservation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reservations, id)
	return writeCollection(filepath.Join(s.dir, reservationsFile), s.reservations)
}

// Reservations returns every reservation ordered by id.
func (s *Store) Reservations() []*Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsLocked(func(*Reservation) bool { return true })
}

// ReservationsForBook returns the active hold queue for one ISBN, oldest
// reservation first.
func (s *Store) ReservationsForBook(isbn string, asOf time.Time) []*Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.reservationsLocked(func(r *Reservation) bool {
		return r.ISBN == isbn && r.Active(asOf)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReservedAt.Before(out[j].ReservedAt) })
	return out
}

// ReservationsForMember returns all of a member's reservations in id order.
func (s *Store) ReservationsForMember(memberID string) []*Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsLocked(func(r *Reservation) bool { return r.MemberID == memberID })
}

// ActiveReservations returns every reservation still waiting as of the
// given moment.
func (s *Store) ActiveReservations(asOf time.Time) []*Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reservationsLocked(func(r *Reservation) bool { return r.Active(asOf) })
}

// reservationsLocked filters reservations in id order. Caller must hold at
// least a read lock.
func (s *Store) reservationsLocked(keep func(*Reservation) bool) []*Reservation {
	var out []*Reservation
	for _, r := range s.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
