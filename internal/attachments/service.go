// Package attachments manages observation photos: payload bytes go to the
// blob store, attachment metadata goes onto the record, and the record
// store's image-update event tells other contexts to re-render.
package attachments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mdobak/go-xerrors"

	"fieldlog/internal/blob"
	"fieldlog/pkg/domain"
)

const (
	metaRotation   = "rotation"
	metaCapturedAt = "captured-at"
)

// Records is the slice of the record store the service mutates.
type Records interface {
	Get(id string) (domain.Observation, bool)
	UpdateImages(id string, images []domain.ImageAttachment) error
}

// Service stores and serves observation photos.
type Service struct {
	records Records
	store   blob.Store
	log     *slog.Logger
}

// New wires the service. A nil logger discards.
func New(records Records, store blob.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{records: records, store: store, log: log}
}

// keyFor builds the payload key for the n-th image of a record. Keys are
// zero-padded so a prefix listing returns images in attachment order.
func keyFor(recordID string, n int) string {
	return fmt.Sprintf("observations/%s/%03d", recordID, n)
}

// nextIndex picks the first index past every existing attachment so a
// detach never frees a key for reuse.
func nextIndex(images []domain.ImageAttachment) int {
	next := 0
	for _, img := range images {
		if i := strings.LastIndex(img.Key, "/"); i >= 0 {
			if n, err := strconv.Atoi(img.Key[i+1:]); err == nil && n >= next {
				next = n + 1
			}
		}
	}
	return next
}

// Attach stores one photo payload and appends its metadata to the record.
// Rotation is in degrees clockwise and must be a quarter turn.
func (s *Service) Attach(ctx context.Context, recordID string, r io.Reader, contentType string, rotation int, capturedAt time.Time) (domain.ImageAttachment, error) {
	if rotation%90 != 0 {
		return domain.ImageAttachment{}, fmt.Errorf("rotation %d is not a quarter turn", rotation)
	}
	rec, ok := s.records.Get(recordID)
	if !ok {
		return domain.ImageAttachment{}, domain.NotFoundError{ID: recordID}
	}

	key := keyFor(recordID, nextIndex(rec.Images))
	meta := map[string]string{metaRotation: strconv.Itoa(rotation)}
	if !capturedAt.IsZero() {
		meta[metaCapturedAt] = capturedAt.UTC().Format(time.RFC3339)
	}
	info, err := s.store.Put(ctx, key, r, blob.PutOptions{ContentType: contentType, Metadata: meta})
	if err != nil {
		return domain.ImageAttachment{}, fmt.Errorf("store payload: %w", err)
	}

	att := domain.ImageAttachment{
		Key:         key,
		ContentType: contentType,
		Size:        info.Size,
		Rotation:    ((rotation % 360) + 360) % 360,
	}
	if !capturedAt.IsZero() {
		t := capturedAt.UTC()
		att.CapturedAt = &t
	}
	images := append(append([]domain.ImageAttachment(nil), rec.Images...), att)
	if err := s.records.UpdateImages(recordID, images); err != nil {
		// The record write failed, so the payload must not outlive it.
		if _, derr := s.store.Delete(ctx, key); derr != nil {
			s.log.Warn("orphaned payload cleanup failed", "key", key, "error", xerrors.New(derr))
		}
		return domain.ImageAttachment{}, err
	}
	return att, nil
}

// Open returns the stored payload for one attachment.
func (s *Service) Open(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	return s.store.Get(ctx, key)
}

// Rotate updates an attachment's rotation in place. Only record metadata
// changes; the payload is never rewritten.
func (s *Service) Rotate(recordID, key string, rotation int) error {
	if rotation%90 != 0 {
		return fmt.Errorf("rotation %d is not a quarter turn", rotation)
	}
	rec, ok := s.records.Get(recordID)
	if !ok {
		return domain.NotFoundError{ID: recordID}
	}
	images := append([]domain.ImageAttachment(nil), rec.Images...)
	found := false
	for i := range images {
		if images[i].Key == key {
			images[i].Rotation = ((rotation % 360) + 360) % 360
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("record %s has no attachment %s", recordID, key)
	}
	return s.records.UpdateImages(recordID, images)
}

// Detach removes one attachment from the record and deletes its payload.
func (s *Service) Detach(ctx context.Context, recordID, key string) error {
	rec, ok := s.records.Get(recordID)
	if !ok {
		return domain.NotFoundError{ID: recordID}
	}
	images := make([]domain.ImageAttachment, 0, len(rec.Images))
	found := false
	for _, img := range rec.Images {
		if img.Key == key {
			found = true
			continue
		}
		images = append(images, img)
	}
	if !found {
		return fmt.Errorf("record %s has no attachment %s", recordID, key)
	}
	if err := s.records.UpdateImages(recordID, images); err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, key); err != nil {
		s.log.Warn("payload delete failed", "key", key, "error", xerrors.New(err))
	}
	return nil
}

// Purge deletes every payload stored for a record. Call it after the
// record itself is deleted.
func (s *Service) Purge(ctx context.Context, recordID string) error {
	infos, err := s.store.List(ctx, "observations/"+recordID+"/")
	if err != nil {
		return err
	}
	for _, info := range infos {
		if _, err := s.store.Delete(ctx, info.Key); err != nil {
			return fmt.Errorf("delete %s: %w", info.Key, err)
		}
	}
	return nil
}

// ShareURL returns a time-limited URL for an attachment when the backend
// supports it.
func (s *Service) ShareURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return s.store.PresignURL(ctx, key, expiry)
}
