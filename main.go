package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"library-catalog/library"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		// Business-rule rejections are expected outcomes, not crashes.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openLibrary builds the catalog from the environment. A .env file in the
// working directory may set LIBRARY_DATA_DIR; otherwise the default
// relative data directory is used.
func openLibrary() (*library.Library, error) {
	_ = godotenv.Load()
	logger := library.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))
	return library.New(library.Config{
		DataDir: os.Getenv("LIBRARY_DATA_DIR"),
		Logger:  logger,
	})
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "library-catalog",
		Short:         "Manage a library catalog of books, members, loans, and reservations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		addBookCmd(),
		removeBookCmd(),
		registerCmd(),
		checkoutCmd(),
		returnCmd(),
		reserveCmd(),
		searchCmd(),
		listBooksCmd(),
		listMembersCmd(),
		historyCmd(),
		overdueCmd(),
		statsCmd(),
		cleanupCmd(),
	)
	return root
}

func addBookCmd() *cobra.Command {
	var (
		year   int
		copies int
		genre  string
	)
	cmd := &cobra.Command{
		Use:   "add-book <isbn> <title> <author>",
		Short: "Add a book, or more copies of an existing one",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			book, err := lib.AddBook(args[0], args[1], args[2], year, copies, genre)
			if err != nil {
				return err
			}
			fmt.Printf("Added %q by %s (%s), %d/%d copies available\n",
				book.Title, book.Author, book.ISBN, book.AvailableCopies, book.TotalCopies)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "publication year")
	cmd.Flags().IntVar(&copies, "copies", 1, "number of copies to add")
	cmd.Flags().StringVar(&genre, "genre", "", "genre (optional)")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func removeBookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-book <isbn>",
		Short: "Remove a book that has no active loans",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			if err := lib.RemoveBook(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <email>",
		Short: "Register a new member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			member, err := lib.RegisterMember(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s (%s), member id %s\n", member.Name, member.Email, member.ID)
			return nil
		},
	}
}

func checkoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <isbn> <member-id>",
		Short: "Check a book out, or join its hold queue when none are left",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			loan, res, err := lib.CheckoutBook(args[0], args[1])
			if errors.Is(err, library.ErrNoAvailableCopy) {
				fmt.Printf("No copies available. Reservation %s placed, expires %s\n",
					res.ID, res.ExpiresAt.Format("2006-01-02"))
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Checked out. Loan %s, due %s\n", loan.ID, loan.DueAt.Format("2006-01-02"))
			return nil
		},
	}
}

func returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return <isbn> <member-id>",
		Short: "Return a checked-out book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			loan, err := lib.ReturnBook(args[0], args[1])
			if err != nil {
				return err
			}
			if loan.FineAmount.IsPositive() {
				fmt.Printf("Returned. Late fee: %s\n", loan.FineAmount.String())
			} else {
				fmt.Println("Returned on time.")
			}
			return nil
		},
	}
}

func reserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <isbn> <member-id>",
		Short: "Place a hold on a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			res, err := lib.ReserveBook(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Reserved. Reservation %s expires %s\n", res.ID, res.ExpiresAt.Format("2006-01-02"))
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search books by title, author, or genre",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			printBooks(lib.SearchBooks(args[0]))
			return nil
		},
	}
}

func listBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-books",
		Short: "List the whole catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			printBooks(lib.Books())
			return nil
		},
	}
}

func listMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-members",
		Short: "List registered members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tBORROWED")
			for _, m := range lib.Members() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", m.ID, m.Name, m.Email, len(m.History))
			}
			return w.Flush()
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <member-id>",
		Short: "Show a member's borrowing history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			entries, err := lib.MemberBorrowingHistory(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ISBN\tTITLE\tCHECKED OUT\tDUE\tRETURNED")
			for _, e := range entries {
				returned := "-"
				if e.ReturnedAt != nil {
					returned = e.ReturnedAt.Format("2006-01-02")
				}
				title := e.Title
				if title == "" {
					title = "(removed)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ISBN, title,
					e.CheckedOutAt.Format("2006-01-02"), e.DueAt.Format("2006-01-02"), returned)
			}
			return w.Flush()
		},
	}
}

func overdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Report members with overdue books and their fees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			reports := lib.MembersWithOverdueBooks()
			if len(reports) == 0 {
				fmt.Println("Nothing overdue.")
				return nil
			}
			for _, r := range reports {
				fmt.Printf("%s (%s): %d overdue, fees %s\n",
					r.Member.Name, r.Member.ID, len(r.Loans), r.TotalFine.String())
				for _, rec := range r.Loans {
					fmt.Printf("  %s due %s\n", rec.ISBN, rec.DueAt.Format("2006-01-02"))
				}
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			stats := lib.Statistics()
			fmt.Printf("Books: %d  Members: %d  Active loans: %d  Active reservations: %d\n",
				stats.TotalBooks, stats.TotalMembers, stats.ActiveLoans, stats.ActiveReservations)
			if len(stats.TopBooks) > 0 {
				fmt.Println("Most borrowed:")
				for _, top := range stats.TopBooks {
					title := top.Title
					if title == "" {
						title = top.ISBN
					}
					fmt.Printf("  %s (%d)\n", title, top.Count)
				}
			}
			if stats.MostActiveMember != nil {
				fmt.Printf("Most active member: %s (%d books)\n",
					stats.MostActiveMember.Member.Name, stats.MostActiveMember.Count)
			}
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired reservations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			removed, err := lib.CleanupExpiredReservations()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d expired reservation(s)\n", removed)
			return nil
		},
	}
}

func printBooks(books []*library.Book) {
	if len(books) == 0 {
		fmt.Println("No books found.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ISBN\tTITLE\tAUTHOR\tYEAR\tGENRE\tAVAILABLE")
	for _, b := range books {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d/%d\n",
			b.ISBN, b.Title, b.Author, b.PublicationYear, b.Genre, b.AvailableCopies, b.TotalCopies)
	}
	_ = w.Flush()
}
