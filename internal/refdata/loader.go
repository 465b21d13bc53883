package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mdobak/go-xerrors"

	"fieldlog/pkg/domain"
)

// CurrentDataVersion is the version stamp of the published dataset. The
// local cache reloads only when its stored stamp differs.
const CurrentDataVersion = "2023-09-28"

// DefaultPartitionCount is the number of partition files the published
// dataset is split into.
const DefaultPartitionCount = 10

// Fetcher retrieves one raw partition file by index. Partition files are
// numbered from 1.
type Fetcher interface {
	FetchPartition(ctx context.Context, index int) ([]byte, error)
}

// HTTPFetcher fetches dataset partitions from a static file host.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher builds a fetcher for the given base URL with a bounded
// request timeout.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchPartition downloads species-data-<index>.json. Transport failures
// wrap domain.ErrNetworkUnavailable so callers can defer the reload to the
// next connectivity window.
func (f *HTTPFetcher) FetchPartition(ctx context.Context, index int) ([]byte, error) {
	url := fmt.Sprintf("%s/species-data-%d.json", f.BaseURL, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrNetworkUnavailable, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrNetworkUnavailable, url, err)
	}
	return body, nil
}

// partitionFile is the wire shape of one published partition. The row
// array keeps the "original csv" key the partition splitter writes, so
// already-published partition files parse unchanged.
type partitionFile struct {
	Records []partitionRecord `json:"original csv"`
}

type partitionRecord struct {
	Genus                 string `json:"Genus"`
	Species               string `json:"Species"`
	VernacularNameBokmaal string `json:"VernacularNameBokmaal"`
	Kingdom               string `json:"Kingdom"`
	Phylum                string `json:"Phylum"`
	Class                 string `json:"Class"`
	Order                 string `json:"Order"`
	Family                string `json:"Family"`
	CategoryNorway        string `json:"CategoryNorway"`
	CategorySvalbard      string `json:"CategorySvalbard"`
}

// Loader drives the version-gated reference reload.
type Loader struct {
	store      *Store
	fetcher    Fetcher
	log        *slog.Logger
	partitions int
}

// NewLoader wires a loader over the cache and a partition source. A nil
// logger discards.
func NewLoader(store *Store, fetcher Fetcher, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Loader{store: store, fetcher: fetcher, log: log, partitions: DefaultPartitionCount}
}

// SetPartitionCount overrides the published partition count, for datasets
// split differently than the default.
func (l *Loader) SetPartitionCount(n int) {
	if n > 0 {
		l.partitions = n
	}
}

// CheckAndSync compares the cached version stamp against
// CurrentDataVersion and reloads the cache partition by partition when
// they differ. progress receives percentages in [0,100] and may be nil.
// When the cache is already current no partition is fetched and progress
// jumps straight to 100.
//
// Individual partition failures are logged and skipped so that one bad
// file degrades coverage instead of blocking the whole reload. The version
// stamp is only advanced after the surviving partitions are committed.
func (l *Loader) CheckAndSync(ctx context.Context, progress func(percent int)) error {
	if progress == nil {
		progress = func(int) {}
	}
	cached, err := l.store.Version()
	if err != nil {
		return err
	}
	if cached == CurrentDataVersion {
		l.log.Debug("reference data current", "version", cached)
		progress(100)
		return nil
	}
	l.log.Info("reloading reference data", "from", cached, "to", CurrentDataVersion)

	var entries []domain.SpeciesEntry
	seen := make(map[string]struct{})
	var failed int
	for i := 1; i <= l.partitions; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := l.fetcher.FetchPartition(ctx, i)
		if err != nil {
			failed++
			l.log.Warn("partition fetch failed", "partition", i, "error", xerrors.New(err))
			progress(i * 100 / l.partitions)
			continue
		}
		var file partitionFile
		if err := json.Unmarshal(raw, &file); err != nil {
			failed++
			l.log.Warn("partition decode failed", "partition", i, "error", xerrors.New(err))
			progress(i * 100 / l.partitions)
			continue
		}
		for _, rec := range file.Records {
			entry, ok := toEntry(rec)
			if !ok {
				l.log.Warn("skipping species record without genus and species",
					"partition", i, "genus", rec.Genus, "species", rec.Species)
				continue
			}
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			seen[entry.ID] = struct{}{}
			entries = append(entries, entry)
		}
		progress(i * 100 / l.partitions)
	}
	if failed == l.partitions {
		return xerrors.New("all reference partitions failed to load")
	}

	if err := l.store.Replace(entries, CurrentDataVersion); err != nil {
		return err
	}
	l.log.Info("reference data reloaded", "entries", len(entries), "failedPartitions", failed)
	progress(100)
	return nil
}

// toEntry normalizes one wire record. Records without both genus and
// species have no stable identifier and are dropped.
func toEntry(rec partitionRecord) (domain.SpeciesEntry, bool) {
	genus := strings.TrimSpace(rec.Genus)
	species := strings.TrimSpace(rec.Species)
	if genus == "" || species == "" {
		return domain.SpeciesEntry{}, false
	}
	entry := domain.SpeciesEntry{
		ID:             genus + "_" + species,
		Genus:          genus,
		Species:        species,
		ScientificName: genus + " " + species,
		Kingdom:        rec.Kingdom,
		Phylum:         rec.Phylum,
		Class:          rec.Class,
		Order:          rec.Order,
		Family:         rec.Family,
	}
	if name := strings.TrimSpace(rec.VernacularNameBokmaal); name != "" {
		entry.VernacularNames = map[string]string{domain.LocaleBokmaal: name}
	}
	if rec.CategoryNorway != "" || rec.CategorySvalbard != "" {
		entry.Categories = make(map[string]string)
		if rec.CategoryNorway != "" {
			entry.Categories[domain.JurisdictionNorway] = rec.CategoryNorway
		}
		if rec.CategorySvalbard != "" {
			entry.Categories[domain.JurisdictionSvalbard] = rec.CategorySvalbard
		}
	}
	return entry, true
}
