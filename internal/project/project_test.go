package project

import (
	"errors"
	"reflect"
	"testing"
)

func fullDraft() Draft {
	return Draft{
		Title:       "Portfolio",
		Description: "Personal site",
		Image:       &Image{Name: "cover.png", Content: []byte{0x89, 'P', 'N', 'G'}},
		GithubLink:  "https://github.com/example/portfolio",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Draft)
		missing []string
	}{
		{"complete", func(*Draft) {}, nil},
		{"no title", func(d *Draft) { d.Title = "" }, []string{"title"}},
		{"no description", func(d *Draft) { d.Description = "" }, []string{"description"}},
		{"no image", func(d *Draft) { d.Image = nil }, []string{"image"}},
		{"unnamed image", func(d *Draft) { d.Image = &Image{Content: []byte("x")} }, []string{"image"}},
		{"no link", func(d *Draft) { d.GithubLink = "" }, []string{"githubLink"}},
		{"empty draft", func(d *Draft) { *d = Draft{} }, []string{"title", "description", "image", "githubLink"}},
		{"link is not checked for shape", func(d *Draft) { d.GithubLink = "not a url" }, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := fullDraft()
			tc.mutate(&d)

			missing, err := d.Validate()
			if tc.missing == nil {
				if err != nil {
					t.Fatalf("expected valid draft, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("expected ErrMissingField, got %v", err)
			}
			if !reflect.DeepEqual(missing, tc.missing) {
				t.Errorf("missing = %v, want %v", missing, tc.missing)
			}
		})
	}
}

func TestNewRecordRequiresImageURL(t *testing.T) {
	if _, err := NewRecord(fullDraft(), ""); err == nil {
		t.Fatal("expected error for empty image URL")
	}

	rec, err := NewRecord(fullDraft(), "https://cdn.example/cover.png")
	if err != nil {
		t.Fatalf("NewRecord failed: %v", err)
	}
	want := map[string]any{
		"title":       "Portfolio",
		"description": "Personal site",
		"imageUrl":    "https://cdn.example/cover.png",
		"githubLink":  "https://github.com/example/portfolio",
	}
	if got := rec.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}

func TestIsEmpty(t *testing.T) {
	if !(Draft{}).IsEmpty() {
		t.Error("zero draft should be empty")
	}
	if fullDraft().IsEmpty() {
		t.Error("full draft should not be empty")
	}
}
