package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"libreshelf/library"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session",
	Long: `Start an interactive prompt. Type one of the listed commands; the
session is re-validated before any teacher-only action.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
		return runShell(cmd.Context(), cmd.OutOrStdout(), p)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func printShellHelp(w io.Writer) {
	fmt.Fprintln(w, "Available commands:")
	fmt.Fprintln(w, "  Account: login, register, logout, whoami")
	fmt.Fprintln(w, "  Books: list books, search book, show book, categories")
	fmt.Fprintln(w, "  Teaching: publish book, update book, delete book")
	fmt.Fprintln(w, "  System: help, exit")
}

func runShell(ctx context.Context, w io.Writer, p *prompter) error {
	fmt.Fprintln(w, "Welcome to LibreShelf!")
	if st.shelf.Auth.CheckAuthOnLoad(ctx) {
		fmt.Fprintf(w, "Signed in as %s (role: %s)\n", st.db.DisplayName(), st.db.Role())
	}
	printShellHelp(w)

	for {
		cmd, err := p.line("\n> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch cmd {
		case "":
			continue
		case "login":
			err = runLogin(ctx, w, p, "")
		case "register":
			err = runRegister(ctx, w, p, registerForm{})
		case "logout":
			if err = st.shelf.Auth.Logout(); err == nil {
				fmt.Fprintln(w, "Signed out.")
			}
		case "whoami":
			err = runWhoami(ctx, w)
		case "list books":
			err = shellListBooks(ctx, w, p, false)
		case "search book":
			err = shellListBooks(ctx, w, p, true)
		case "show book":
			err = shellShowBook(ctx, w, p)
		case "categories":
			err = shellCategories(ctx, w)
		case "publish book":
			err = shellPublish(ctx, w, p)
		case "update book":
			err = shellUpdate(ctx, w, p)
		case "delete book":
			err = shellDelete(ctx, w, p)
		case "help":
			printShellHelp(w)
		case "exit", "quit":
			fmt.Fprintln(w, "Goodbye!")
			return nil
		default:
			fmt.Fprintln(w, "Unknown command. Type 'help' to see the available commands.")
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(w, errorText(err))
		}
	}
}

func shellListBooks(ctx context.Context, w io.Writer, p *prompter, search bool) error {
	opts := library.ListOptions{Page: 1, Limit: 20}
	if search {
		q, err := p.line("Query: ")
		if err != nil {
			return err
		}
		opts.Search = q
	}
	page, err := p.line("Page (Enter for 1): ")
	if err != nil {
		return err
	}
	if page != "" {
		n, convErr := strconv.Atoi(page)
		if convErr != nil || n <= 0 {
			return fmt.Errorf("invalid page: %s", page)
		}
		opts.Page = n
	}

	list, err := st.shelf.Books.List(ctx, opts)
	if err != nil {
		return err
	}
	printBookTable(w, list)
	return nil
}

func askID(p *prompter) (int64, error) {
	s, err := p.line("Book ID: ")
	if err != nil {
		return 0, err
	}
	return parseID(s)
}

func shellShowBook(ctx context.Context, w io.Writer, p *prompter) error {
	id, err := askID(p)
	if err != nil {
		return err
	}
	book, err := st.shelf.Books.Get(ctx, id)
	if err != nil {
		return err
	}
	printBookDetail(w, book)
	return nil
}

func shellCategories(ctx context.Context, w io.Writer) error {
	cats, err := st.shelf.Categories.List(ctx)
	if err != nil {
		return err
	}
	printCategoryTable(w, cats)
	return nil
}

func shellPublish(ctx context.Context, w io.Writer, p *prompter) error {
	if err := requireRole(ctx, library.RoleTeacher); err != nil {
		return err
	}

	var in library.PublishInput
	var err error
	if in.Title, err = p.line("Title: "); err != nil {
		return err
	}
	if in.Description, err = p.line("Description: "); err != nil {
		return err
	}
	cat, err := p.line("Category ID (optional): ")
	if err != nil {
		return err
	}
	if cat != "" {
		if in.CategoryID, err = strconv.ParseInt(cat, 10, 64); err != nil {
			return fmt.Errorf("invalid category ID: %s", cat)
		}
	}
	if in.CoverPath, err = p.line("Path to cover image: "); err != nil {
		return err
	}
	if in.FilePath, err = p.line("Path to PDF: "); err != nil {
		return err
	}

	book, err := st.shelf.PublishBook(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Book published successfully! (ID: %d)\n", book.ID)
	return nil
}

func shellUpdate(ctx context.Context, w io.Writer, p *prompter) error {
	if err := requireRole(ctx, library.RoleTeacher); err != nil {
		return err
	}
	id, err := askID(p)
	if err != nil {
		return err
	}

	var patch library.BookPatch
	title, err := p.line("New title (Enter to keep): ")
	if err != nil {
		return err
	}
	if title != "" {
		patch.Title = &title
	}
	desc, err := p.line("New description (Enter to keep): ")
	if err != nil {
		return err
	}
	if desc != "" {
		patch.Description = &desc
	}
	if patch.Empty() {
		fmt.Fprintln(w, "Nothing to update.")
		return nil
	}

	if _, err := st.shelf.Books.Update(ctx, id, patch); err != nil {
		return err
	}
	fmt.Fprintf(w, "Updated book ID %d.\n", id)
	return nil
}

func shellDelete(ctx context.Context, w io.Writer, p *prompter) error {
	if err := requireRole(ctx, library.RoleTeacher); err != nil {
		return err
	}
	id, err := askID(p)
	if err != nil {
		return err
	}
	confirm, err := p.line(fmt.Sprintf("Delete book %d? Type 'yes' to confirm: ", id))
	if err != nil {
		return err
	}
	if !strings.EqualFold(confirm, "yes") {
		fmt.Fprintln(w, "Cancelled.")
		return nil
	}
	if err := st.shelf.Books.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted book ID %d.\n", id)
	return nil
}
