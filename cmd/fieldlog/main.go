// Command fieldlog is the field observation logger. It keeps records and
// the species reference dataset in local storage so everything works
// offline, and pushes pending records to the remote registry on demand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fieldlog/internal/attachments"
	"fieldlog/internal/blob"
	"fieldlog/internal/broadcast"
	"fieldlog/internal/logging"
	"fieldlog/internal/records"
	"fieldlog/internal/refdata"
	"fieldlog/internal/search"
	"fieldlog/internal/syncqueue"
	"fieldlog/pkg/domain"
)

const usage = `usage: fieldlog <command> [flags]

commands:
  list                 list observation records
  create               capture a new observation
  delete <id>...       delete observation records
  photo-attach <id> <file>   attach a photo to an observation record
  photo-detach <id> <key>    remove a photo from an observation record
  refdata-sync         reload the species reference dataset if outdated
  search <query>       search the species reference dataset
  drain                push pending records to the remote registry

environment:
  FIELDLOG_STORAGE_DRIVER    sqlite|postgres|memory (default sqlite)
  FIELDLOG_SQLITE_PATH       records database file
  FIELDLOG_REFDATA_PATH      reference database file
  FIELDLOG_REFDATA_URL       partition file host
  FIELDLOG_REMOTE_URL        remote registry base URL
  FIELDLOG_BLOB_DRIVER       fs|s3|memory photo payload store (default fs)
  FIELDLOG_BLOB_FS_ROOT      photo directory when driver=fs
  FIELDLOG_BLOB_S3_BUCKET    photo bucket when driver=s3
`

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := logging.New()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "list":
		err = cmdList(log)
	case "create":
		err = cmdCreate(rest, log)
	case "delete":
		err = cmdDelete(rest, log)
	case "photo-attach":
		err = cmdPhotoAttach(rest, log)
	case "photo-detach":
		err = cmdPhotoDetach(rest, log)
	case "refdata-sync":
		err = cmdRefdataSync(log)
	case "search":
		err = cmdSearch(rest)
	case "drain":
		err = cmdDrain(rest, log)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if err != nil {
		log.Error(cmd+" failed", "error", err)
		return 1
	}
	return 0
}

func openRecords(log *slog.Logger) (*records.Store, func(), error) {
	persister, err := records.OpenPersister()
	if err != nil {
		return nil, nil, err
	}
	bus := broadcast.New()
	store, err := records.Open(persister, bus, log)
	if err != nil {
		_ = persister.Close()
		return nil, nil, err
	}
	cleanup := func() {
		bus.Close()
		_ = persister.Close()
	}
	return store, cleanup, nil
}

func cmdList(log *slog.Logger) error {
	store, cleanup, err := openRecords(log)
	if err != nil {
		return err
	}
	defer cleanup()
	for _, obs := range store.List() {
		line := fmt.Sprintf("%s  %-8s  %s", obs.ID, obs.SyncStatus, obs.Species.Display())
		if obs.Locality != "" {
			line += "  @ " + obs.Locality
		}
		fmt.Println(line)
	}
	return nil
}

func cmdCreate(args []string, log *slog.Logger) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	scientific := fs.String("species", "", "scientific name")
	vernacular := fs.String("vernacular", "", "vernacular name")
	lat := fs.Float64("lat", 0, "latitude")
	lon := fs.Float64("lon", 0, "longitude")
	accuracy := fs.Int("accuracy", 0, "position accuracy in meters (preset values only)")
	date := fs.String("date", time.Now().Format("2006-01-02"), "observation date")
	at := fs.String("time", "", "observation time (HH:MM)")
	locality := fs.String("locality", "", "locality name")
	comment := fs.String("comment", "", "free-text comment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	draft := domain.Observation{
		Species:      domain.SpeciesRef{ScientificName: *scientific, VernacularName: *vernacular},
		ObservedDate: *date,
		ObservedTime: *at,
		Locality:     *locality,
		Comment:      *comment,
	}
	if *lat != 0 || *lon != 0 {
		draft.Position = &domain.Position{Latitude: *lat, Longitude: *lon}
	}
	if *accuracy != 0 {
		draft.AccuracyMeters = accuracy
	}

	store, cleanup, err := openRecords(log)
	if err != nil {
		return err
	}
	defer cleanup()
	created, err := store.Create(draft)
	if err != nil {
		return err
	}
	fmt.Println(created.ID)
	return nil
}

func cmdDelete(ids []string, log *slog.Logger) error {
	if len(ids) == 0 {
		return fmt.Errorf("delete needs at least one record id")
	}
	store, cleanup, err := openRecords(log)
	if err != nil {
		return err
	}
	defer cleanup()
	if err := store.Delete(ids); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	payloads, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open photo store: %w", err)
	}
	photos := attachments.New(store, payloads, log)
	for _, id := range ids {
		if err := photos.Purge(ctx, id); err != nil {
			return fmt.Errorf("purge photos for %s: %w", id, err)
		}
	}
	return nil
}

func cmdPhotoAttach(args []string, log *slog.Logger) error {
	fs := flag.NewFlagSet("photo-attach", flag.ContinueOnError)
	rotation := fs.Int("rotation", 0, "clockwise rotation in quarter turns of 90 degrees")
	captured := fs.String("captured", "", "capture time (RFC 3339)")
	contentType := fs.String("content-type", "image/jpeg", "payload content type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("photo-attach needs a record id and a file")
	}
	recordID, path := fs.Arg(0), fs.Arg(1)

	var capturedAt time.Time
	if *captured != "" {
		t, err := time.Parse(time.RFC3339, *captured)
		if err != nil {
			return fmt.Errorf("parse captured time: %w", err)
		}
		capturedAt = t
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	store, cleanup, err := openRecords(log)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	payloads, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open photo store: %w", err)
	}
	att, err := attachments.New(store, payloads, log).Attach(ctx, recordID, f, *contentType, *rotation, capturedAt)
	if err != nil {
		return err
	}
	fmt.Println(att.Key)
	return nil
}

func cmdPhotoDetach(args []string, log *slog.Logger) error {
	if len(args) != 2 {
		return fmt.Errorf("photo-detach needs a record id and an attachment key")
	}
	store, cleanup, err := openRecords(log)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	payloads, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open photo store: %w", err)
	}
	return attachments.New(store, payloads, log).Detach(ctx, args[0], args[1])
}

func cmdRefdataSync(log *slog.Logger) error {
	store, err := refdata.Open(os.Getenv("FIELDLOG_REFDATA_PATH"))
	if err != nil {
		return err
	}
	defer store.Close()

	baseURL := os.Getenv("FIELDLOG_REFDATA_URL")
	if baseURL == "" {
		return fmt.Errorf("FIELDLOG_REFDATA_URL not set")
	}
	loader := refdata.NewLoader(store, refdata.NewHTTPFetcher(baseURL), log)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return loader.CheckAndSync(ctx, func(percent int) {
		fmt.Printf("\rloading species data: %3d%%", percent)
		if percent == 100 {
			fmt.Println()
		}
	})
}

func cmdSearch(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("search needs a query")
	}
	query := strings.Join(args, " ")

	store, err := refdata.Open(os.Getenv("FIELDLOG_REFDATA_PATH"))
	if err != nil {
		return err
	}
	defer store.Close()
	entries, err := store.All()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("reference data empty, run refdata-sync first")
	}

	for _, entry := range search.New(entries).Search(query) {
		name := entry.Vernacular(domain.LocaleBokmaal)
		if name == "" {
			name = entry.ScientificName
		} else {
			name += " (" + entry.ScientificName + ")"
		}
		if cat := entry.Categories[domain.JurisdictionNorway]; cat != "" {
			name += "  [" + cat + "]"
		}
		fmt.Println(name)
	}
	return nil
}

func cmdDrain(args []string, log *slog.Logger) error {
	fs := flag.NewFlagSet("drain", flag.ContinueOnError)
	remote := fs.String("remote", os.Getenv("FIELDLOG_REMOTE_URL"), "remote registry base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *remote == "" {
		return fmt.Errorf("remote registry URL not set")
	}

	store, cleanup, err := openRecords(log)
	if err != nil {
		return err
	}
	defer cleanup()

	queue := syncqueue.New(store, syncqueue.NewHTTPClient(*remote), log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	res, err := queue.Drain(ctx)
	if err != nil {
		return err
	}
	log.Info("drain finished",
		"confirmed", res.Confirmed,
		"retried", res.Retried,
		"failed", res.Failed,
		"deleted", res.Deleted,
	)
	return nil
}
