package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"library-catalog/library"
)

// seedBook is one catalog entry to create.
type seedBook struct {
	isbn   string
	title  string
	author string
	year   int
	copies int
	genre  string
}

var seedBooks = []seedBook{
	{"9780132350884", "Clean Code", "Robert C. Martin", 2008, 2, "Software"},
	{"9780134190440", "The Go Programming Language", "Alan A. A. Donovan", 2015, 3, "Software"},
	{"0451524934", "1984", "George Orwell", 1949, 2, "Dystopia"},
	{"9780547928227", "The Hobbit", "J.R.R. Tolkien", 1937, 1, "Fantasy"},
	{"9780441013593", "Dune", "Frank Herbert", 1965, 2, "Science Fiction"},
	{"9780141439518", "Pride and Prejudice", "Jane Austen", 1813, 1, "Classic"},
}

var seedMembers = [][2]string{
	{"Alice Nguyen", "alice@example.com"},
	{"Bob Ferreira", "bob@example.com"},
	{"Charlie Okafor", "charlie@example.com"},
}

func main() {
	dataDir := os.Getenv("LIBRARY_DATA_DIR")
	if dataDir == "" {
		dataDir = library.DefaultDataDir
	}

	// Start from a clean slate so repeated runs stay deterministic.
	fmt.Printf("Resetting collection files in %s...\n", dataDir)
	for _, name := range []string{"books.json", "members.json", "loans.json", "reservations.json"} {
		if err := os.Remove(filepath.Join(dataDir, name)); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: could not remove %s: %v\n", name, err)
		}
	}

	lib, err := library.New(library.Config{
		DataDir: dataDir,
		Logger:  library.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening catalog: %v\n", err)
		os.Exit(1)
	}

	for _, b := range seedBooks {
		if _, err := lib.AddBook(b.isbn, b.title, b.author, b.year, b.copies, b.genre); err != nil {
			fmt.Fprintf(os.Stderr, "Error adding %q: %v\n", b.title, err)
			os.Exit(1)
		}
		fmt.Printf("Added %q by %s\n", b.title, b.author)
	}

	var members []*library.Member
	for _, m := range seedMembers {
		member, err := lib.RegisterMember(m[0], m[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error registering %s: %v\n", m[0], err)
			os.Exit(1)
		}
		members = append(members, member)
		fmt.Printf("Registered %s (%s)\n", member.Name, member.ID)
	}

	// A little circulation so reports have something to show: Alice takes
	// the only Hobbit copy, Bob queues for it, Charlie borrows Dune.
	checkouts := []struct {
		isbn   string
		member *library.Member
	}{
		{"9780547928227", members[0]},
		{"9780547928227", members[1]},
		{"9780441013593", members[2]},
		{"9780132350884", members[0]},
	}
	for _, c := range checkouts {
		loan, res, err := lib.CheckoutBook(c.isbn, c.member.ID)
		switch {
		case errors.Is(err, library.ErrNoAvailableCopy):
			fmt.Printf("%s queued for %s (reservation %s)\n", c.member.Name, c.isbn, res.ID)
		case err != nil:
			fmt.Fprintf(os.Stderr, "Error checking out %s: %v\n", c.isbn, err)
			os.Exit(1)
		default:
			fmt.Printf("%s checked out %s (due %s)\n", c.member.Name, c.isbn, loan.DueAt.Format("2006-01-02"))
		}
	}

	stats := lib.Statistics()
	fmt.Printf("\nSeed complete: %d books, %d members, %d active loans, %d active reservations\n",
		stats.TotalBooks, stats.TotalMembers, stats.ActiveLoans, stats.ActiveReservations)
}
