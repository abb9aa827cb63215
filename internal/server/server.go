// Package server exposes the upload form over HTTP. The form is a single
// shared resource: clients edit its fields, attach an image and submit it.
//
// Endpoints:
//
//	GET    /form               current form state
//	PATCH  /form               edit text fields
//	PUT    /form/image         attach an image (multipart field "image")
//	DELETE /form/image         release the attached image
//	POST   /form/submit        upload the image and persist the project
//	GET    /submissions/{id}   submission history entry
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tomasbasham/project-upload/internal/operation"
	"github.com/tomasbasham/project-upload/internal/project"
	"github.com/tomasbasham/project-upload/internal/workflow"
)

// DefaultMaxImageSize bounds the multipart body accepted by PUT /form/image.
const DefaultMaxImageSize = 10 << 20 // 10MB

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	workflow *workflow.Workflow
	history  operation.Store
	logger   zerolog.Logger
	router   chi.Router

	maxImageSize int64
}

// New creates a Server for the given form workflow. history may be nil, in
// which case GET /submissions/{id} always responds 404.
func New(wf *workflow.Workflow, history operation.Store, logger zerolog.Logger) *Server {
	s := &Server{
		workflow:     wf,
		history:      history,
		logger:       logger.With().Str("component", "server").Logger(),
		maxImageSize: DefaultMaxImageSize,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/form", func(r chi.Router) {
		r.Get("/", s.handleGetForm)
		r.Patch("/", s.handlePatchForm)
		r.Put("/image", s.handlePutImage)
		r.Delete("/image", s.handleDeleteImage)
		r.Post("/submit", s.handleSubmit)
	})
	r.Get("/submissions/{id}", s.handleGetSubmission)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// formResponse is the JSON rendering of the form.
type formResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	GithubLink  string `json:"github_link"`
	ImageName   string `json:"image_name,omitempty"`
	Phase       string `json:"phase"`
	Uploading   bool   `json:"uploading"`
	Error       string `json:"error,omitempty"`
	Notice      string `json:"notice,omitempty"`
}

// patchFormRequest is the JSON body for PATCH /form. Absent fields are left
// unchanged.
type patchFormRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	GithubLink  *string `json:"github_link"`
}

// submitResponse is returned from a successful POST /form/submit.
type submitResponse struct {
	SubmissionID string         `json:"submission_id,omitempty"`
	ID           string         `json:"id"`
	Record       project.Record `json:"record"`
	Notice       string         `json:"notice"`
}

func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.form())
}

func (s *Server) handlePatchForm(w http.ResponseWriter, r *http.Request) {
	var req patchFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Title != nil {
		s.workflow.SetTitle(*req.Title)
	}
	if req.Description != nil {
		s.workflow.SetDescription(*req.Description)
	}
	if req.GithubLink != nil {
		s.workflow.SetGithubLink(*req.GithubLink)
	}

	writeJSON(w, http.StatusOK, s.form())
}

func (s *Server) handlePutImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageSize)
	if err := r.ParseMultipartForm(s.maxImageSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image: "+err.Error())
		return
	}

	s.workflow.SetImage(&project.Image{Name: header.Filename, Content: content})
	writeJSON(w, http.StatusOK, s.form())
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	s.workflow.SetImage(nil)
	writeJSON(w, http.StatusOK, s.form())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	// A submission runs to completion once started; a client disconnecting
	// must not cancel the upload halfway through.
	ctx := context.WithoutCancel(r.Context())

	result, err := s.workflow.Submit(ctx)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		SubmissionID: result.SubmissionID,
		ID:           result.DocumentID,
		Record:       result.Record,
		Notice:       workflow.NoticeSuccess,
	})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	if errors.Is(err, workflow.ErrInFlight) {
		writeError(w, http.StatusConflict, "an upload is already in progress")
		return
	}

	var se *workflow.SubmitError
	if !errors.As(err, &se) {
		s.logger.Error().Err(err).Msg("unexpected submit error")
		writeError(w, http.StatusInternalServerError, workflow.NoticeFailure)
		return
	}

	if se.Kind == workflow.KindMissingField {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  workflow.MessageMissingFields,
			"fields": se.Fields,
		})
		return
	}

	// Remote failures are reported identically whatever their kind; the
	// kind is available through the submission history.
	body := map[string]string{"error": workflow.NoticeFailure}
	if se.SubmissionID != "" {
		body["submission_id"] = se.SubmissionID
	}
	writeJSON(w, http.StatusBadGateway, body)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.history == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("submission %q not found", id))
		return
	}

	op, err := s.history.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("submission %q not found", id))
		return
	}

	writeJSON(w, http.StatusOK, op)
}

func (s *Server) form() formResponse {
	v := s.workflow.View()
	return formResponse{
		Title:       v.Draft.Title,
		Description: v.Draft.Description,
		GithubLink:  v.Draft.GithubLink,
		ImageName:   v.Draft.ImageName(),
		Phase:       v.Phase.String(),
		Uploading:   v.Uploading,
		Error:       v.Error,
		Notice:      v.Notice,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
