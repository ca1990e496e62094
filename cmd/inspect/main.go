package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"file-renamer/domain"
	"file-renamer/repositories"
	"file-renamer/transfer"

	"github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	config, err := LoadConfig()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	dbPath := flag.String("db", config.BadgerFilepath, "Path to badger DB")
	limit := flag.Int("limit", config.Limit, "Number of records to show, newest first")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repository := repositories.NewActivityRepository(db, logs.GetLoggerFromLevel(slog.LevelError), 0)
	records, err := repository.ListRecent(*limit)
	if err != nil {
		log.Fatal(err)
	}
	stats, err := repository.Stats()
	if err != nil {
		log.Fatal(err)
	}
	Render(os.Stdout, records, config.Colours)
	fmt.Printf("\n%d runs, %d succeeded, %d failed, %s delivered\n",
		stats.Total, stats.Succeeded, stats.Failed, humanize.IBytes(uint64(stats.Bytes)))
}

// Render prints records as a borderless table.
func Render(w io.Writer, records []domain.ActivityRecord, colours bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"At", "Outcome", "User", "Original", "Renamed", "Size", "Duration", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, r := range records {
		outcome := string(r.Kind)
		if colours {
			fg := color.FgGreen
			if r.Kind == domain.ActivityFailed {
				fg = color.FgRed
			}
			outcome = color.New(fg).Render(outcome)
		}
		detail := ""
		if r.Kind == domain.ActivityFailed {
			detail = strings.TrimSpace(fmt.Sprintf("%s: %s", r.Step, r.Reason))
		}
		table.Append([]string{
			r.At.Format("2006-01-02 15:04:05"),
			outcome,
			fmt.Sprintf("%d", r.UserID),
			r.OriginalName,
			r.NewName,
			humanize.IBytes(uint64(r.Size)),
			transfer.FormatDuration(r.Duration),
			detail,
		})
	}
	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
