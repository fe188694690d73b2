package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"libreshelf/library"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Browse and manage books",
}

var listOpts library.ListOptions

var booksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books, optionally filtered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := st.shelf.Books.List(cmd.Context(), listOpts)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), st.cfg.Output, list, func(w io.Writer) {
			printBookTable(w, list)
		})
	},
}

var booksGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one book",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		book, err := st.shelf.Books.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), st.cfg.Output, book, func(w io.Writer) {
			printBookDetail(w, book)
		})
	},
}

var (
	bookTitle       string
	bookAuthor      string
	bookDescription string
	bookCategory    int64
	bookThumbnail   string
	bookFileURL     string
	bookRating      float64
	bookCover       string
	bookFile        string
)

var booksCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a book record from existing URLs (teacher or admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRole(cmd.Context(), library.RoleTeacher); err != nil {
			return err
		}
		in := library.BookInput{
			Title:       bookTitle,
			Author:      bookAuthor,
			Description: bookDescription,
			Thumbnail:   bookThumbnail,
			FileURL:     bookFileURL,
		}
		if bookCategory > 0 {
			in.CategoryIDs = []int64{bookCategory}
		}
		book, err := st.shelf.Books.Create(cmd.Context(), in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created book ID %d.\n", book.ID)
		return nil
	},
}

var booksUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a book (teacher or admin)",
	Long: `Change fields of a book. Only the flags given are sent; everything
else is left as it is on the server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		patch := patchFromFlags(cmd)
		if patch.Empty() {
			return fmt.Errorf("nothing to update: pass at least one field flag")
		}
		if err := requireRole(cmd.Context(), library.RoleTeacher); err != nil {
			return err
		}
		book, err := st.shelf.Books.Update(cmd.Context(), id, patch)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated book ID %d.\n", book.ID)
		return nil
	},
}

var booksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a book (teacher or admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := requireRole(cmd.Context(), library.RoleTeacher); err != nil {
			return err
		}
		if err := st.shelf.Books.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted book ID %d.\n", id)
		return nil
	},
}

var booksPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload a cover and a PDF, then create the book (teacher or admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRole(cmd.Context(), library.RoleTeacher); err != nil {
			return err
		}
		book, err := st.shelf.PublishBook(cmd.Context(), library.PublishInput{
			Title:       bookTitle,
			Author:      bookAuthor,
			Description: bookDescription,
			CategoryID:  bookCategory,
			CoverPath:   bookCover,
			FilePath:    bookFile,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Book published successfully! (ID: %d)\n", book.ID)
		return nil
	},
}

func init() {
	lf := booksListCmd.Flags()
	lf.IntVar(&listOpts.Page, "page", 1, "page number")
	lf.IntVar(&listOpts.Limit, "limit", 20, "books per page")
	lf.StringVar(&listOpts.Search, "search", "", "search title or author")
	lf.Int64Var(&listOpts.CategoryID, "category", 0, "category id filter")

	for _, c := range []*cobra.Command{booksCreateCmd, booksUpdateCmd, booksPublishCmd} {
		f := c.Flags()
		f.StringVar(&bookTitle, "title", "", "book title")
		f.StringVar(&bookAuthor, "author", "", "author name")
		f.StringVar(&bookDescription, "description", "", "short description")
		f.Int64Var(&bookCategory, "category", 0, "category id")
	}
	for _, c := range []*cobra.Command{booksCreateCmd, booksUpdateCmd} {
		f := c.Flags()
		f.StringVar(&bookThumbnail, "thumbnail", "", "cover image URL")
		f.StringVar(&bookFileURL, "file-url", "", "book file URL")
	}
	booksUpdateCmd.Flags().Float64Var(&bookRating, "rating", 0, "rating")
	booksPublishCmd.Flags().StringVar(&bookCover, "cover", "", "path to the cover image")
	booksPublishCmd.Flags().StringVar(&bookFile, "file", "", "path to the book PDF")

	_ = booksCreateCmd.MarkFlagRequired("title")
	_ = booksPublishCmd.MarkFlagRequired("title")
	_ = booksPublishCmd.MarkFlagRequired("cover")
	_ = booksPublishCmd.MarkFlagRequired("file")

	booksCmd.AddCommand(booksListCmd, booksGetCmd, booksCreateCmd, booksUpdateCmd, booksDeleteCmd, booksPublishCmd)
	rootCmd.AddCommand(booksCmd)
}

// patchFromFlags includes only the flags the user actually set.
func patchFromFlags(cmd *cobra.Command) library.BookPatch {
	var p library.BookPatch
	f := cmd.Flags()
	if f.Changed("title") {
		p.Title = &bookTitle
	}
	if f.Changed("author") {
		p.Author = &bookAuthor
	}
	if f.Changed("description") {
		p.Description = &bookDescription
	}
	if f.Changed("category") {
		p.CategoryIDs = []int64{bookCategory}
	}
	if f.Changed("thumbnail") {
		p.Thumbnail = &bookThumbnail
	}
	if f.Changed("file-url") {
		p.FileURL = &bookFileURL
	}
	if f.Changed("rating") {
		p.Rating = &bookRating
	}
	return p
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid book ID: %s", s)
	}
	return id, nil
}
