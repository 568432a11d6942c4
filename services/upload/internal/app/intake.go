package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"papercast/internal/util"
	"papercast/pkg/domain"
	"papercast/pkg/queue"
)

const defaultFilename = "document.pdf"

// SubmitRequest is one file handed to intake. Size is the declared size.
type SubmitRequest struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	Title       string
	Authors     []string
	Abstract    string
	Priority    *int
}

// Submit validates a PDF, stores it under pending/ and records it.
// The blob is written first; if the record cannot be created the blob
// is removed again, or left for SweepOrphans when that also fails.
func (a *App) Submit(ctx context.Context, actor domain.Actor, req SubmitRequest) (domain.Upload, error) {
	if err := requireOwnerOrAdmin(actor); err != nil {
		return domain.Upload{}, err
	}
	data, priority, err := a.validateSubmit(req)
	if err != nil {
		uploadsSubmitted.WithLabelValues(resultRejected).Inc()
		return domain.Upload{}, err
	}

	id := uuid.NewString()
	key := storageKeyFor(id)
	logger := util.LoggerFromContext(ctx).With("upload_id", id, "storage_key", key)

	hints, err := inspectPDF(data)
	if err != nil {
		logger.Debug("pdf inspection skipped", "err", err)
	}

	locator, err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), domain.ContentTypePDF)
	if err != nil {
		uploadsSubmitted.WithLabelValues(resultStorage).Inc()
		logger.Error("intake put blob failed", "step", "put_blob", "err", err)
		return domain.Upload{}, domain.Storage("could not store file", err)
	}

	now := a.now().UTC()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = hints.Title
	}
	rec := domain.Upload{
		ID:                id,
		OwnerID:           actor.ID,
		OriginalFilename:  baseFilename(req.Filename),
		StorageKey:        key,
		StorageLocator:    locator,
		SizeBytes:         int64(len(data)),
		PageCount:         hints.PageCount,
		Status:            domain.StatusPending,
		ExtractedTitle:    title,
		ExtractedAuthors:  normalizeAuthors(req.Authors),
		ExtractedAbstract: strings.TrimSpace(req.Abstract),
		Priority:          priority,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = a.retry.Do(ctx, key, func(ctx context.Context) error {
		return a.store.CreateUpload(ctx, rec)
	})
	if err != nil {
		logger.Error("intake create record failed", "step", "create_record", "err", err)
		stored, committed := a.compensateCreate(ctx, logger, rec)
		if !committed {
			uploadsSubmitted.WithLabelValues(resultDatabase).Inc()
			return domain.Upload{}, domain.Database("could not record upload", fmt.Errorf("create upload %s: %w", id, err))
		}
		rec = stored
	}
	uploadsSubmitted.WithLabelValues(resultAccepted).Inc()

	owner := domain.Owner{ID: actor.ID, Email: actor.Email, DisplayName: actor.Name, UpdatedAt: now}
	if err := a.store.UpsertOwner(ctx, owner); err != nil {
		logger.Warn("owner directory upsert failed", "step", "upsert_owner", "err", err)
	}
	a.notifyPending(ctx, rec)
	logger.Info("upload accepted", "size_bytes", rec.SizeBytes, "priority", rec.Priority, "page_count", rec.PageCount)
	return rec, nil
}

// compensateCreate runs after the record create gave up. The create may
// still have committed, so the row is looked up before the blob goes: a
// committed row keeps its blob and the intake succeeds, an unknown outcome
// leaves the blob for SweepOrphans.
func (a *App) compensateCreate(ctx context.Context, logger *slog.Logger, rec domain.Upload) (domain.Upload, bool) {
	ctx = context.WithoutCancel(ctx)
	stored, found, err := a.store.GetUpload(ctx, rec.ID)
	switch {
	case err != nil:
		logger.Error("intake compensation skipped, record state unknown; blob left for reconciler", "step", "compensate", "err", err)
		return domain.Upload{}, false
	case found:
		logger.Warn("record create reported failure but row exists; keeping blob", "step", "compensate")
		return stored, true
	}
	if err := a.objects.Delete(ctx, rec.StorageKey); err != nil {
		blobDeleteFailures.Inc()
		logger.Error("intake compensation failed, blob left for reconciler", "step", "compensate", "err", err)
	} else {
		logger.Info("intake compensation removed blob", "step", "compensate")
	}
	return domain.Upload{}, false
}

func (a *App) validateSubmit(req SubmitRequest) ([]byte, int, error) {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(req.ContentType))
	if err != nil || !strings.EqualFold(mediaType, domain.ContentTypePDF) {
		return nil, 0, domain.Validation("only application/pdf uploads are accepted")
	}
	if req.Size <= 0 {
		return nil, 0, domain.Validation("file is empty")
	}
	if req.Size > a.maxBytes {
		return nil, 0, domain.Validation(fmt.Sprintf("file exceeds %d bytes", a.maxBytes))
	}
	priority := domain.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
		if !domain.ValidPriority(priority) {
			return nil, 0, domain.Validation(fmt.Sprintf("priority must be between %d and %d", domain.MinPriority, domain.MaxPriority))
		}
	}
	if req.Body == nil {
		return nil, 0, domain.Validation("file body required")
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, req.Size+1))
	if err != nil {
		return nil, 0, domain.Validation("could not read file body")
	}
	switch {
	case int64(len(data)) > req.Size:
		return nil, 0, domain.Validation("file is larger than its declared size")
	case int64(len(data)) < req.Size:
		return nil, 0, domain.Validation("file is shorter than its declared size")
	}
	return data, priority, nil
}

func storageKeyFor(id string) string {
	return domain.PendingKeyPrefix + id + ".pdf"
}

// uploadIDFromKey is the inverse of storageKeyFor.
func uploadIDFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, domain.PendingKeyPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ".pdf")
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// baseFilename keeps only the last path element of a client filename.
func baseFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	base := path.Base(name)
	if base == "." || base == "/" || base == "" {
		return defaultFilename
	}
	return base
}

func normalizeAuthors(raw []string) []string {
	var out []string
	for _, entry := range raw {
		for _, name := range strings.Split(entry, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func (a *App) notifyPending(ctx context.Context, u domain.Upload) {
	err := a.notifier.Notify(ctx, queue.Notice{
		UploadID: u.ID,
		Priority: u.Priority,
		Status:   string(domain.StatusPending),
		At:       a.now().UTC(),
	})
	if err != nil {
		util.LoggerFromContext(ctx).Warn("work notice not published", "upload_id", u.ID, "err", err)
	}
}
