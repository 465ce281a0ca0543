// Command terminal follows a venue's floor from the command line. It keeps
// a read cache in step with the server and prints the table board whenever
// something changes.
//
//	terminal -server http://localhost:8080 -token $(tokengen -venue v1 -terminal pos-1)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/mmynk/tableside/internal/auth"
	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/feed/wsfeed"
	"github.com/mmynk/tableside/internal/terminal"
	"github.com/mmynk/tableside/pkg/logging"
)

func main() {
	logging.Setup()

	server := flag.String("server", "http://localhost:8080", "server base URL")
	token := flag.String("token", os.Getenv("TABLESIDE_TOKEN"), "terminal token (default TABLESIDE_TOKEN)")
	flag.Parse()

	if err := run(*server, *token); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Terminal stopped", "error", err)
		os.Exit(1)
	}
}

func run(server, token string) error {
	claims, err := auth.ReadClaims(token)
	if err != nil {
		return err
	}
	wsURL, err := feedURL(server)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view := terminal.NewView(claims.VenueID)
	s := &terminal.Sync{
		View:    view,
		Source:  terminal.NewClient(http.DefaultClient, server, token),
		VenueID: claims.VenueID,
		Feed: &wsfeed.Client{
			URL:    wsURL,
			Header: http.Header{"Authorization": []string{"Bearer " + token}},
		},
		OnSnapshot: func() { printBoard(os.Stdout, view) },
		OnEvent:    func(feed.Event) { printBoard(os.Stdout, view) },
	}

	slog.Info("Following venue", "venue_id", claims.VenueID, "terminal_id", claims.TerminalID, "feed", wsURL)
	return s.Run(ctx)
}

// feedURL turns http://host into ws://host/feed.
func feedURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/feed"
	return u.String(), nil
}

func printBoard(w io.Writer, view *terminal.View) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tSTATUS\tGUESTS\tORDERS")
	for _, t := range view.Tables() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", t.Number, t.Status, t.CurrentGuests, t.ActiveOrders)
	}
	tw.Flush()

	open := 0
	for _, o := range view.Orders() {
		if o.Active() {
			open++
		}
	}
	fmt.Fprintf(w, "%d open orders\n\n", open)
}
