// Package project defines the project draft a user composes in the upload
// form and the record persisted once its image has been stored.
package project

import (
	"errors"
	"strings"
)

// ErrMissingField is returned by Validate when any required draft field is
// empty or absent.
var ErrMissingField = errors.New("project: missing required field")

// Image is a user-selected file that has not been uploaded yet.
type Image struct {
	// Name is the original file name as chosen by the user. It is used
	// verbatim to derive the storage key.
	Name string

	// Content is the raw file content.
	Content []byte
}

// Draft is the transient form state. Every field is required.
type Draft struct {
	Title       string
	Description string
	Image       *Image
	GithubLink  string
}

// Record is the persisted form of a project. ImageURL always refers to a
// blob that has already been written.
type Record struct {
	Title       string `json:"title" firestore:"title"`
	Description string `json:"description" firestore:"description"`
	ImageURL    string `json:"imageUrl" firestore:"imageUrl"`
	GithubLink  string `json:"githubLink" firestore:"githubLink"`
}

// Validate reports ErrMissingField together with the names of the missing
// fields. A whitespace-only value counts as present, matching the form's
// plain emptiness check.
func (d Draft) Validate() ([]string, error) {
	var missing []string
	if d.Title == "" {
		missing = append(missing, "title")
	}
	if d.Description == "" {
		missing = append(missing, "description")
	}
	if d.Image == nil || d.Image.Name == "" {
		missing = append(missing, "image")
	}
	if d.GithubLink == "" {
		missing = append(missing, "githubLink")
	}
	if len(missing) > 0 {
		return missing, ErrMissingField
	}
	return nil, nil
}

// IsEmpty reports whether every field has been cleared.
func (d Draft) IsEmpty() bool {
	return d.Title == "" && d.Description == "" && d.Image == nil && d.GithubLink == ""
}

// ImageName returns the selected file name, or "" when no file is selected.
func (d Draft) ImageName() string {
	if d.Image == nil {
		return ""
	}
	return d.Image.Name
}

// NewRecord builds the record to persist from a validated draft and the
// durable URL of its uploaded image.
func NewRecord(d Draft, imageURL string) (Record, error) {
	if strings.TrimSpace(imageURL) == "" {
		return Record{}, errors.New("project: image URL must not be empty")
	}
	return Record{
		Title:       d.Title,
		Description: d.Description,
		ImageURL:    imageURL,
		GithubLink:  d.GithubLink,
	}, nil
}

// Fields returns the record as the field mapping written to the document
// store.
func (r Record) Fields() map[string]any {
	return map[string]any{
		"title":       r.Title,
		"description": r.Description,
		"imageUrl":    r.ImageURL,
		"githubLink":  r.GithubLink,
	}
}
