package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hitoshi/notekeeper/internal/client"
)

const defaultAPIURL = "http://localhost:8080"

const clientUsage = `usage: notekeeper client <command>

commands:
  login            print the URL to open in a browser
  callback <url>   finish login with the URL the browser was redirected to
  whoami           show the logged-in user
  notes [search]   list notes, pinned first
  logout           log out and discard the stored token`

// errNotLoggedIn はトークンがないか無効な状態でログインが必要なコマンドを実行したことを表す。
var errNotLoggedIn = errors.New("not logged in: run `notekeeper client login`")

// runClient はNOTEKEEPER_API_URLとユーザー設定ディレクトリのトークンでクライアントコマンドを実行する。
func runClient(ctx context.Context, w io.Writer, args []string) error {
	apiURL := os.Getenv("NOTEKEEPER_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	path, err := client.DefaultTokenPath()
	if err != nil {
		return err
	}
	return execClient(ctx, w, args, apiURL, client.NewFileStore(path))
}

func execClient(ctx context.Context, w io.Writer, args []string, apiURL string, store client.CredentialStore) error {
	if len(args) == 0 {
		return errors.New(clientUsage)
	}

	api := client.NewClient(apiURL, store, nil)
	session := client.NewSession(api, store)

	switch args[0] {
	case "login":
		fmt.Fprintln(w, "Open this URL in a browser and sign in:")
		fmt.Fprintln(w, "  "+api.LoginURL("google"))
		fmt.Fprintln(w, "Then run: notekeeper client callback '<redirected URL>'")
		return nil

	case "callback":
		if len(args) < 2 {
			return errors.New("usage: notekeeper client callback <url>")
		}
		u, err := session.CompleteCallback(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Logged in as %s <%s>\n", u.Name, u.Email)
		return nil

	case "whoami":
		if session.Init(ctx) != client.StateAuthenticated {
			return errNotLoggedIn
		}
		u := session.User()
		fmt.Fprintf(w, "%s <%s>\n", u.Name, u.Email)
		return nil

	case "notes":
		if session.Init(ctx) != client.StateAuthenticated {
			return errNotLoggedIn
		}
		dashboard := client.NewDashboard(api)
		if err := dashboard.Load(ctx, client.ListOptions{Search: strings.Join(args[1:], " ")}); err != nil {
			return err
		}
		printNotes(w, dashboard)
		return nil

	case "logout":
		if err := session.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, "Logged out")
		return nil

	default:
		return fmt.Errorf("unknown client command %q\n%s", args[0], clientUsage)
	}
}

func printNotes(w io.Writer, d *client.Dashboard) {
	pinned, regular := d.Pinned(), d.Regular()
	if len(pinned)+len(regular) == 0 {
		fmt.Fprintln(w, "No notes")
		return
	}
	if len(pinned) > 0 {
		fmt.Fprintf(w, "Pinned Notes (%d)\n", len(pinned))
		for _, n := range pinned {
			printNote(w, n)
		}
	}
	if len(regular) > 0 {
		fmt.Fprintf(w, "Notes (%d)\n", len(regular))
		for _, n := range regular {
			printNote(w, n)
		}
	}
	p := d.Pagination()
	if p.TotalPages > 1 {
		fmt.Fprintf(w, "page %d/%d, %d notes\n", p.CurrentPage, p.TotalPages, p.TotalNotes)
	}
}

func printNote(w io.Writer, n client.Note) {
	line := fmt.Sprintf("  %s  %s [%s]", n.ID, n.Title, n.Category)
	if len(n.Tags) > 0 {
		line += " #" + strings.Join(n.Tags, " #")
	}
	fmt.Fprintln(w, line)
}
