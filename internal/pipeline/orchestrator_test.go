package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/wareline/kbcore/internal/model"
)

type fakeDocStore struct {
	byID     map[string]*model.Document
	byHash   map[string]*model.Document
	created  int
	updates  []model.ProcessingStatus
	deleted  []string
	numbered int
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		byID:   map[string]*model.Document{},
		byHash: map[string]*model.Document{},
	}
}

func (s *fakeDocStore) Create(ctx context.Context, doc *model.Document) error {
	s.created++
	cp := *doc
	s.byID[doc.ID] = &cp
	s.byHash[doc.FileHash] = &cp
	return nil
}

func (s *fakeDocStore) Update(ctx context.Context, doc *model.Document) error {
	s.updates = append(s.updates, doc.ProcessingStatus)
	cp := *doc
	s.byID[doc.ID] = &cp
	return nil
}

func (s *fakeDocStore) Get(ctx context.Context, id string) (*model.Document, error) {
	doc, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeDocStore) GetByHash(ctx context.Context, hash string) (*model.Document, error) {
	doc, ok := s.byHash[hash]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeDocStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.byID, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeDocStore) NextDocumentNumber(ctx context.Context) (string, error) {
	s.numbered++
	return fmt.Sprintf("DOC-%06d", s.numbered), nil
}

type fakeChunkStore struct {
	byDoc      map[string][]model.Chunk
	replaceErr error
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{byDoc: map[string][]model.Chunk{}}
}

func (s *fakeChunkStore) ReplaceForDocument(ctx context.Context, documentID string, chunks []model.Chunk) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.byDoc[documentID] = chunks
	return nil
}

func (s *fakeChunkStore) IDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	var ids []string
	for _, c := range s.byDoc[documentID] {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

type fakeInvalidator struct {
	invalidations int
	removedIDs    []string
}

func (f *fakeInvalidator) InvalidateResults(ctx context.Context) error {
	f.invalidations++
	return nil
}

func (f *fakeInvalidator) RemoveDocument(ctx context.Context, chunkIDs []string) error {
	f.removedIDs = append(f.removedIDs, chunkIDs...)
	f.invalidations++
	return nil
}

func newTestOrchestrator() (*Orchestrator, *fakeDocStore, *fakeChunkStore, *fakeInvalidator) {
	docs := newFakeDocStore()
	chunks := newFakeChunkStore()
	inv := &fakeInvalidator{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(docs, chunks, inv, log), docs, chunks, inv
}

func markdownFixture() []byte {
	return []byte("# Returns Policy\n\n" + strings.Repeat("Damaged goods must be logged in the register before restocking. ", 30))
}

func TestProcessDocument_Success(t *testing.T) {
	orch, docs, chunks, inv := newTestOrchestrator()

	result, err := orch.ProcessDocument(context.Background(), markdownFixture(), "returns.md", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := result.Document
	if doc.ProcessingStatus != model.StatusCompleted {
		t.Errorf("expected completed status, got %s", doc.ProcessingStatus)
	}
	if result.ChunksCreated == 0 || doc.ChunksCount != result.ChunksCreated {
		t.Errorf("chunk count mismatch: created=%d recorded=%d", result.ChunksCreated, doc.ChunksCount)
	}
	if doc.Version != 1 {
		t.Errorf("expected version 1, got %d", doc.Version)
	}
	if doc.ApprovalStatus != model.ApprovalDraft {
		t.Errorf("new documents start as drafts, got %s", doc.ApprovalStatus)
	}
	if doc.Title != "Returns Policy" {
		t.Errorf("expected title from document content, got %q", doc.Title)
	}

	if docs.created != 1 {
		t.Errorf("expected exactly one create, got %d", docs.created)
	}
	// pending -> processing -> completed, with pending set at create time.
	wantUpdates := []model.ProcessingStatus{model.StatusProcessing, model.StatusCompleted}
	if len(docs.updates) != len(wantUpdates) {
		t.Fatalf("expected updates %v, got %v", wantUpdates, docs.updates)
	}
	for i, w := range wantUpdates {
		if docs.updates[i] != w {
			t.Errorf("update %d = %s, want %s", i, docs.updates[i], w)
		}
	}

	stored := chunks.byDoc[doc.ID]
	if len(stored) != result.ChunksCreated {
		t.Errorf("expected %d persisted chunks, got %d", result.ChunksCreated, len(stored))
	}
	for i, c := range stored {
		if c.ID == "" || c.DocumentID != doc.ID || c.ChunkIndex != i {
			t.Errorf("chunk %d not fully assigned: %+v", i, c)
		}
		if c.HasEmbedding {
			t.Errorf("chunk %d must start without an embedding", i)
		}
	}
	if inv.invalidations == 0 {
		t.Error("expected results cache invalidation after ingestion")
	}
}

func TestProcessDocument_DuplicateRejectedWithoutRecord(t *testing.T) {
	orch, docs, _, _ := newTestOrchestrator()
	data := markdownFixture()

	first, err := orch.ProcessDocument(context.Background(), data, "returns.md", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("first ingestion failed: %v", err)
	}

	_, err = orch.ProcessDocument(context.Background(), data, "renamed-copy.md", DefaultProcessOptions())
	var dup *model.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.ExistingID != first.Document.ID {
		t.Errorf("duplicate error points at %q, want %q", dup.ExistingID, first.Document.ID)
	}
	if docs.created != 1 {
		t.Errorf("duplicate must not create a record, creates=%d", docs.created)
	}
}

func TestProcessDocument_DuplicateCheckDisabled(t *testing.T) {
	orch, docs, _, _ := newTestOrchestrator()
	data := markdownFixture()

	if _, err := orch.ProcessDocument(context.Background(), data, "a.md", DefaultProcessOptions()); err != nil {
		t.Fatalf("first ingestion failed: %v", err)
	}
	opts := DefaultProcessOptions()
	opts.CheckDuplicates = false
	if _, err := orch.ProcessDocument(context.Background(), data, "b.md", opts); err != nil {
		t.Fatalf("expected re-ingestion with checks disabled to succeed, got %v", err)
	}
	if docs.created != 2 {
		t.Errorf("expected 2 records, got %d", docs.created)
	}
}

func TestProcessDocument_UnsupportedFormatCreatesNothing(t *testing.T) {
	orch, docs, _, _ := newTestOrchestrator()

	_, err := orch.ProcessDocument(context.Background(), []byte("payload"), "image.png", DefaultProcessOptions())
	if !errors.Is(err, model.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if docs.created != 0 {
		t.Errorf("unsupported input must not create a record, creates=%d", docs.created)
	}
}

func TestProcessDocument_CorruptInputCreatesNothing(t *testing.T) {
	orch, docs, _, _ := newTestOrchestrator()

	_, err := orch.ProcessDocument(context.Background(), []byte("not a word file"), "broken.docx", DefaultProcessOptions())
	if !errors.Is(err, model.ErrCorruptInput) {
		t.Fatalf("expected ErrCorruptInput, got %v", err)
	}
	if docs.created != 0 {
		t.Errorf("corrupt input must not create a record, creates=%d", docs.created)
	}
}

func TestProcessDocument_PersistFailureMarksFailed(t *testing.T) {
	orch, docs, chunks, _ := newTestOrchestrator()
	chunks.replaceErr = errors.New("connection reset")

	_, err := orch.ProcessDocument(context.Background(), markdownFixture(), "returns.md", DefaultProcessOptions())
	if err == nil {
		t.Fatal("expected persistence error")
	}

	var failed *model.Document
	for _, doc := range docs.byID {
		failed = doc
	}
	if failed == nil {
		t.Fatal("document record should exist after a post-create failure")
	}
	if failed.ProcessingStatus != model.StatusFailed {
		t.Errorf("expected failed status, got %s", failed.ProcessingStatus)
	}
	if !strings.Contains(failed.ErrorMessage, "connection reset") {
		t.Errorf("expected captured error message, got %q", failed.ErrorMessage)
	}
}

func TestProcessDocument_AssignsDocumentNumber(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator()
	opts := DefaultProcessOptions()
	opts.AssignNumber = true

	result, err := orch.ProcessDocument(context.Background(), markdownFixture(), "returns.md", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Document.DocumentNumber != "DOC-000001" {
		t.Errorf("expected assigned number, got %q", result.Document.DocumentNumber)
	}
}

func TestReprocessDocument_BumpsVersionAndDropsOldVectors(t *testing.T) {
	orch, _, chunks, inv := newTestOrchestrator()

	first, err := orch.ProcessDocument(context.Background(), markdownFixture(), "returns.md", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("initial ingestion failed: %v", err)
	}
	oldIDs, _ := chunks.IDsByDocument(context.Background(), first.Document.ID)
	if len(oldIDs) == 0 {
		t.Fatal("expected chunks from initial ingestion")
	}

	updated := []byte("# Returns Policy v2\n\n" + strings.Repeat("All returns now require a manager signature on the intake form. ", 30))
	second, err := orch.ReprocessDocument(context.Background(), first.Document.ID, updated, DefaultProcessOptions())
	if err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}

	if second.Document.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Document.Version)
	}
	if second.Document.ProcessingStatus != model.StatusCompleted {
		t.Errorf("expected completed status, got %s", second.Document.ProcessingStatus)
	}
	for _, old := range oldIDs {
		found := false
		for _, removed := range inv.removedIDs {
			if removed == old {
				found = true
			}
		}
		if !found {
			t.Errorf("old chunk %s was not removed from the vector index", old)
		}
	}

	newIDs, _ := chunks.IDsByDocument(context.Background(), first.Document.ID)
	for _, n := range newIDs {
		for _, old := range oldIDs {
			if n == old {
				t.Errorf("chunk id %s survived reprocessing", n)
			}
		}
	}
}

func TestReprocessDocument_UnknownDocument(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator()
	_, err := orch.ReprocessDocument(context.Background(), "missing", markdownFixture(), DefaultProcessOptions())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDocument_RemovesChunksAndVectors(t *testing.T) {
	orch, docs, chunks, inv := newTestOrchestrator()

	result, err := orch.ProcessDocument(context.Background(), markdownFixture(), "returns.md", DefaultProcessOptions())
	if err != nil {
		t.Fatalf("ingestion failed: %v", err)
	}
	ids, _ := chunks.IDsByDocument(context.Background(), result.Document.ID)

	if err := orch.DeleteDocument(context.Background(), result.Document.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(docs.deleted) != 1 || docs.deleted[0] != result.Document.ID {
		t.Errorf("expected document delete, got %v", docs.deleted)
	}
	if len(inv.removedIDs) != len(ids) {
		t.Errorf("expected %d vector removals, got %d", len(ids), len(inv.removedIDs))
	}
}

func TestContentHashHex_Deterministic(t *testing.T) {
	a := ContentHashHex([]byte("same bytes"))
	b := ContentHashHex([]byte("same bytes"))
	c := ContentHashHex([]byte("other bytes"))
	if a != b {
		t.Error("hash must be deterministic")
	}
	if a == c {
		t.Error("different content must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
