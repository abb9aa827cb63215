// Package workflow implements the project upload form: it validates the
// draft, writes the image to a blob store, resolves the image's durable URL
// and inserts a project document referencing it. Steps run strictly in
// sequence and only one submission may be in flight at a time.
package workflow

import (
	"bytes"
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomasbasham/project-upload/internal/document"
	"github.com/tomasbasham/project-upload/internal/operation"
	"github.com/tomasbasham/project-upload/internal/project"
	"github.com/tomasbasham/project-upload/internal/storage"
)

// User-facing messages. Remote failures share one message whatever their
// kind.
const (
	MessageMissingFields = "Please fill out all fields"
	NoticeSuccess        = "Project uploaded successfully!"
	NoticeFailure        = "Error uploading project"
)

const (
	DefaultCollection = "projects"
	DefaultKeyPrefix  = "projects/"
)

// Options controls the behaviour of a Workflow.
type Options struct {
	// Collection is the document collection records are inserted into.
	// Defaults to "projects".
	Collection string

	// KeyPrefix is prepended to the image's file name to form the storage
	// key. Defaults to "projects/".
	KeyPrefix string

	// UniqueKeys inserts a generated identifier between the prefix and the
	// file name. When false, uploading a file with a name already in use
	// replaces the earlier blob.
	UniqueKeys bool

	// CleanupOrphans deletes the uploaded image when URL resolution or the
	// document insert fails. When false the blob is left in storage.
	CleanupOrphans bool

	// History, when set, receives one operation per submission that passes
	// validation.
	History operation.Store

	Logger zerolog.Logger
}

// Result describes a successful submission.
type Result struct {
	SubmissionID string
	DocumentID   string
	Record       project.Record
	Blob         *storage.BlobRef
}

// View is a snapshot of everything the form renders.
type View struct {
	Draft     project.Draft
	Phase     Phase
	Uploading bool

	// Error is the inline validation message.
	Error string

	// Notice is the notification raised by the last completed submission.
	Notice string

	Last *Outcome
}

// Workflow owns the draft and the state of a single upload form.
type Workflow struct {
	blobs  storage.BlobStore
	docs   document.Store
	opts   Options
	logger zerolog.Logger
	newID  func() string

	mu     sync.Mutex
	state  State
	draft  project.Draft
	errMsg string
	notice string
}

// New creates a Workflow writing images to blobs and records to docs.
func New(blobs storage.BlobStore, docs document.Store, opts Options) *Workflow {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	return &Workflow{
		blobs:  blobs,
		docs:   docs,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "workflow").Logger(),
		newID:  uuid.NewString,
	}
}

func (w *Workflow) SetTitle(v string) {
	w.mu.Lock()
	w.draft.Title = v
	w.mu.Unlock()
}

func (w *Workflow) SetDescription(v string) {
	w.mu.Lock()
	w.draft.Description = v
	w.mu.Unlock()
}

func (w *Workflow) SetGithubLink(v string) {
	w.mu.Lock()
	w.draft.GithubLink = v
	w.mu.Unlock()
}

// SetImage selects the file to upload and clears the inline error message.
func (w *Workflow) SetImage(img *project.Image) {
	w.mu.Lock()
	w.draft.Image = img
	w.errMsg = ""
	w.mu.Unlock()
}

// View returns a snapshot of the form.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := View{
		Draft:     w.draft,
		Phase:     w.state.Phase(),
		Uploading: w.state.Uploading(),
		Error:     w.errMsg,
		Notice:    w.notice,
	}
	if o, ok := w.state.Outcome(); ok {
		v.Last = &o
	}
	return v
}

// CanSubmit reports whether the submit action is enabled.
func (w *Workflow) CanSubmit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.state.Uploading()
}

// Submit runs the workflow for the current draft. It returns ErrInFlight
// without side effects while another submission is uploading, and a
// *SubmitError for every failed submission. On success the draft is reset;
// on failure it is left untouched.
func (w *Workflow) Submit(ctx context.Context) (*Result, error) {
	w.mu.Lock()
	if w.state.Uploading() {
		w.mu.Unlock()
		w.logger.Debug().Msg("submit ignored while upload in flight")
		return nil, ErrInFlight
	}

	w.transition(Event{Type: EventSubmit})
	w.notice = ""
	draft := w.draft

	if missing, err := draft.Validate(); err != nil {
		w.errMsg = MessageMissingFields
		w.transition(Event{Type: EventFailed, Kind: KindMissingField})
		w.mu.Unlock()
		return nil, &SubmitError{Kind: KindMissingField, Fields: missing, Err: err}
	}

	w.errMsg = ""
	w.transition(Event{Type: EventValidated})
	w.mu.Unlock()

	objectName := w.objectName(draft.Image.Name)
	submissionID := w.record(func(h operation.Store) (string, error) {
		op, err := h.Create(draft.Title, objectName)
		if err != nil {
			return "", err
		}
		return op.ID, h.MarkRunning(op.ID)
	})

	result, err := w.run(ctx, draft, objectName, submissionID)
	w.finish(result, err)
	return result, err
}

// run performs the three remote steps in order. Each step starts only after
// the previous one has returned.
func (w *Workflow) run(ctx context.Context, draft project.Draft, objectName, submissionID string) (*Result, error) {
	logger := w.logger.With().Str("submission_id", submissionID).Str("path", objectName).Logger()

	ref, err := w.blobs.Put(ctx, &storage.PutRequest{
		ObjectName:  objectName,
		Content:     bytes.NewReader(draft.Image.Content),
		ContentType: http.DetectContentType(draft.Image.Content),
	})
	if err != nil {
		return nil, w.fail(logger, KindStorageWriteFailed, submissionID, nil, err)
	}

	var rec project.Record
	imageURL, err := w.blobs.ResolveDownloadURI(ctx, ref)
	if err == nil {
		rec, err = project.NewRecord(draft, imageURL)
	}
	if err != nil {
		return nil, w.fail(logger, KindStorageURLResolutionFailed, submissionID, w.removeOrphan(ctx, logger, ref), err)
	}

	return w.persist(ctx, logger, rec, ref, submissionID)
}

func (w *Workflow) persist(ctx context.Context, logger zerolog.Logger, rec project.Record, ref *storage.BlobRef, submissionID string) (*Result, error) {
	w.advance(Event{Type: EventStored})

	id, err := w.docs.Insert(ctx, w.opts.Collection, rec.Fields())
	if err != nil {
		return nil, w.fail(logger, KindDocumentWriteFailed, submissionID, w.removeOrphan(ctx, logger, ref), err)
	}

	logger.Info().Str("document_id", id).Str("image_url", rec.ImageURL).Msg("project uploaded")
	w.record(func(h operation.Store) (string, error) {
		if submissionID == "" {
			return "", nil
		}
		return submissionID, h.MarkComplete(submissionID, rec.ImageURL, id)
	})

	return &Result{
		SubmissionID: submissionID,
		DocumentID:   id,
		Record:       rec,
		Blob:         ref,
	}, nil
}

// removeOrphan deletes a blob whose submission failed after it was written.
// It returns the reference that remains in storage: ref itself when cleanup
// is disabled or fails, nil once the blob is gone. A cleanup failure never
// changes how the submission failure is classified.
func (w *Workflow) removeOrphan(ctx context.Context, logger zerolog.Logger, ref *storage.BlobRef) *storage.BlobRef {
	if !w.opts.CleanupOrphans {
		logger.Warn().Str("blob", ref.String()).Msg("leaving orphaned blob in storage")
		return ref
	}
	if err := w.blobs.Delete(context.WithoutCancel(ctx), ref); err != nil {
		logger.Error().Err(err).Str("blob", ref.String()).Msg("failed to remove orphaned blob")
		return ref
	}
	logger.Info().Str("blob", ref.String()).Msg("removed orphaned blob")
	return nil
}

func (w *Workflow) fail(logger zerolog.Logger, kind Kind, submissionID string, orphan *storage.BlobRef, err error) error {
	logger.Error().Err(err).Str("kind", string(kind)).Msg("error uploading project")
	w.record(func(h operation.Store) (string, error) {
		if submissionID == "" {
			return "", nil
		}
		return submissionID, h.MarkFailed(submissionID, string(kind), err, orphan != nil)
	})
	return &SubmitError{Kind: kind, SubmissionID: submissionID, Blob: orphan, Err: err}
}

// finish settles the state machine, raises the notification and resets the
// draft on success. It runs on every path once the remote steps are over.
func (w *Workflow) finish(result *Result, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.notice = NoticeFailure
		w.transition(Event{Type: EventFailed, Kind: KindOf(err)})
		return
	}

	w.notice = NoticeSuccess
	w.draft = project.Draft{}
	w.transition(Event{Type: EventPersisted, DocumentID: result.DocumentID})
}

func (w *Workflow) advance(e Event) {
	w.mu.Lock()
	w.transition(e)
	w.mu.Unlock()
}

// transition applies e to the current state. Callers must hold w.mu.
// Workflow only emits events valid for its current phase, so a rejected
// transition indicates a bug and is logged rather than surfaced.
func (w *Workflow) transition(e Event) {
	next, err := Reduce(w.state, e)
	if err != nil {
		w.logger.Error().Err(err).Msg("state machine rejected event")
		return
	}
	w.state = next
}

// record applies fn to the history store, if one is configured, and returns
// the submission ID fn reports. History failures are logged and otherwise
// ignored.
func (w *Workflow) record(fn func(operation.Store) (string, error)) string {
	if w.opts.History == nil {
		return ""
	}
	id, err := fn(w.opts.History)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to record submission history")
	}
	return id
}

// objectName derives the storage key from the image's original file name.
// Without UniqueKeys the name is used as-is, so equal names collide.
func (w *Workflow) objectName(fileName string) string {
	if w.opts.UniqueKeys {
		return w.opts.KeyPrefix + w.newID() + "-" + fileName
	}
	return w.opts.KeyPrefix + fileName
}
