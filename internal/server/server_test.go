package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomasbasham/project-upload/internal/document"
	"github.com/tomasbasham/project-upload/internal/operation"
	"github.com/tomasbasham/project-upload/internal/storage"
	"github.com/tomasbasham/project-upload/internal/workflow"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type failingDocs struct{}

func (failingDocs) Insert(context.Context, string, map[string]any) (string, error) {
	return "", errors.New("firestore unavailable")
}

// blockingBlobs holds Put until the test releases it.
type blockingBlobs struct {
	storage.BlobStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBlobs) Put(ctx context.Context, req *storage.PutRequest) (*storage.BlobRef, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.BlobStore.Put(ctx, req)
}

type fixture struct {
	handler http.Handler
	dir     string
	docs    *document.MemoryStore
	history *operation.MemoryStore
}

func newFixture(t *testing.T, wrap func(storage.BlobStore) storage.BlobStore, docs document.Store) *fixture {
	t.Helper()

	dir := t.TempDir()
	disk, err := storage.NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	f := &fixture{dir: dir, history: operation.NewMemoryStore()}
	var blobs storage.BlobStore = disk
	if wrap != nil {
		blobs = wrap(disk)
	}
	if docs == nil {
		f.docs = document.NewMemoryStore()
		docs = f.docs
	}

	wf := workflow.New(blobs, docs, workflow.Options{
		History: f.history,
		Logger:  zerolog.Nop(),
	})
	f.handler = New(wf, f.history, zerolog.Nop()).Handler()
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) fill(t *testing.T) {
	t.Helper()

	body := `{"title":"Portfolio","description":"Personal site","github_link":"https://github.com/example/portfolio"}`
	rec := f.do(t, httptest.NewRequest(http.MethodPatch, "/form", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH /form: expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, imageRequest(t, "cover.png", pngHeader))
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT /form/image: expected 200, got %d: %s", rec.Code, rec.Body)
	}
}

func imageRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", name)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/form/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.fill(t)

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/form/submit", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	resp := decode[submitResponse](t, rec)
	if resp.Notice != workflow.NoticeSuccess {
		t.Errorf("notice = %q, want %q", resp.Notice, workflow.NoticeSuccess)
	}
	if resp.Record.Title != "Portfolio" || resp.Record.GithubLink != "https://github.com/example/portfolio" {
		t.Errorf("unexpected record: %+v", resp.Record)
	}
	if !strings.HasPrefix(resp.Record.ImageURL, "file://") {
		t.Errorf("image URL = %q, want file:// URL", resp.Record.ImageURL)
	}

	got, err := os.ReadFile(filepath.Join(f.dir, "projects", "cover.png"))
	if err != nil {
		t.Fatalf("expected image on disk: %v", err)
	}
	if !bytes.Equal(got, pngHeader) {
		t.Errorf("stored content mismatch")
	}

	doc, err := f.docs.Get(workflow.DefaultCollection, resp.ID)
	if err != nil {
		t.Fatalf("document not inserted: %v", err)
	}
	if doc.Fields["imageUrl"] != resp.Record.ImageURL {
		t.Errorf("document imageUrl = %v, want %q", doc.Fields["imageUrl"], resp.Record.ImageURL)
	}

	form := decode[formResponse](t, f.do(t, httptest.NewRequest(http.MethodGet, "/form", nil)))
	want := formResponse{Phase: workflow.PhaseDone.String(), Notice: workflow.NoticeSuccess}
	if form != want {
		t.Errorf("form after submit = %+v, want %+v", form, want)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/submissions/"+resp.SubmissionID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET submission: expected 200, got %d", rec.Code)
	}
	op := decode[operation.Operation](t, rec)
	if op.Status != operation.StatusComplete || op.DocumentID != resp.ID {
		t.Errorf("unexpected submission: %+v", op)
	}
}

func TestSubmitMissingFields(t *testing.T) {
	f := newFixture(t, nil, nil)

	body := `{"title":"Portfolio"}`
	f.do(t, httptest.NewRequest(http.MethodPatch, "/form", strings.NewReader(body)))

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/form/submit", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
	}

	resp := decode[struct {
		Error  string   `json:"error"`
		Fields []string `json:"fields"`
	}](t, rec)
	if resp.Error != workflow.MessageMissingFields {
		t.Errorf("error = %q, want %q", resp.Error, workflow.MessageMissingFields)
	}
	if want := []string{"description", "image", "githubLink"}; !reflect.DeepEqual(resp.Fields, want) {
		t.Errorf("fields = %v, want %v", resp.Fields, want)
	}

	form := decode[formResponse](t, f.do(t, httptest.NewRequest(http.MethodGet, "/form", nil)))
	if form.Error != workflow.MessageMissingFields || form.Title != "Portfolio" {
		t.Errorf("unexpected form: %+v", form)
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected nothing written to storage, found %d entries", len(entries))
	}
}

func TestSubmitRemoteFailure(t *testing.T) {
	f := newFixture(t, nil, failingDocs{})
	f.fill(t)

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/form/submit", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body)
	}

	resp := decode[map[string]string](t, rec)
	if resp["error"] != workflow.NoticeFailure {
		t.Errorf("error = %q, want %q", resp["error"], workflow.NoticeFailure)
	}
	id := resp["submission_id"]
	if id == "" {
		t.Fatal("expected submission_id in failure response")
	}

	op := decode[operation.Operation](t, f.do(t, httptest.NewRequest(http.MethodGet, "/submissions/"+id, nil)))
	if op.Status != operation.StatusFailed {
		t.Errorf("status = %q, want %q", op.Status, operation.StatusFailed)
	}
	if op.FailureKind != string(workflow.KindDocumentWriteFailed) {
		t.Errorf("failure kind = %q, want %q", op.FailureKind, workflow.KindDocumentWriteFailed)
	}
	if !op.BlobOrphaned {
		t.Error("expected blob to be reported as orphaned")
	}

	form := decode[formResponse](t, f.do(t, httptest.NewRequest(http.MethodGet, "/form", nil)))
	if form.Title != "Portfolio" || form.ImageName != "cover.png" {
		t.Errorf("draft not preserved after failure: %+v", form)
	}
	if form.Notice != workflow.NoticeFailure || form.Uploading {
		t.Errorf("unexpected form state: %+v", form)
	}
}

func TestSubmitWhileInFlight(t *testing.T) {
	var blocking *blockingBlobs
	f := newFixture(t, func(b storage.BlobStore) storage.BlobStore {
		blocking = &blockingBlobs{
			BlobStore: b,
			entered:   make(chan struct{}),
			release:   make(chan struct{}),
		}
		return blocking
	}, nil)
	f.fill(t)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/form/submit", nil))
		done <- rec
	}()
	<-blocking.entered

	form := decode[formResponse](t, f.do(t, httptest.NewRequest(http.MethodGet, "/form", nil)))
	if !form.Uploading {
		t.Errorf("expected form to report uploading, got %+v", form)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/form/submit", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("second submit: expected 409, got %d", rec.Code)
	}

	close(blocking.release)
	if rec := <-done; rec.Code != http.StatusCreated {
		t.Fatalf("first submit: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if n := len(f.docs.List(workflow.DefaultCollection)); n != 1 {
		t.Errorf("expected 1 document, got %d", n)
	}
}

func TestPatchFormPartialUpdate(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.do(t, httptest.NewRequest(http.MethodPatch, "/form", strings.NewReader(`{"title":"A","description":"B"}`)))
	rec := f.do(t, httptest.NewRequest(http.MethodPatch, "/form", strings.NewReader(`{"title":"C"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	form := decode[formResponse](t, rec)
	if form.Title != "C" || form.Description != "B" {
		t.Errorf("unexpected form: %+v", form)
	}
}

func TestPatchFormInvalidBody(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodPatch, "/form", strings.NewReader(`{`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestImageSelection(t *testing.T) {
	f := newFixture(t, nil, nil)

	// A failed submit sets the inline error; selecting a file clears it.
	f.do(t, httptest.NewRequest(http.MethodPost, "/form/submit", nil))

	rec := f.do(t, imageRequest(t, "cover.png", pngHeader))
	form := decode[formResponse](t, rec)
	if form.ImageName != "cover.png" || form.Error != "" {
		t.Errorf("unexpected form after image upload: %+v", form)
	}

	rec = f.do(t, httptest.NewRequest(http.MethodDelete, "/form/image", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if form := decode[formResponse](t, rec); form.ImageName != "" {
		t.Errorf("expected image to be released, got %q", form.ImageName)
	}
}

func TestPutImageRequiresFile(t *testing.T) {
	f := newFixture(t, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "x")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPut, "/form/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if rec := f.do(t, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/submissions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
