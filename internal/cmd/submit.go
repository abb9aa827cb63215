package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/project-upload/internal/project"
	"github.com/tomasbasham/project-upload/internal/workflow"
)

type SubmitOptions struct {
	*BackendOptions

	image *project.Image

	Title       string
	Description string
	ImagePath   string
	GithubLink  string

	iooption.IOStreams
}

var (
	submitLong = templates.LongDesc(`
		Upload a project. The image is written to the configured blob store
		and a project record referencing its download URL is inserted into
		the document store. Every field is required.`)

	submitExample = templates.Examples(`
		# Upload to a local directory and keep the record in memory
		upload submit --title "Portfolio" --description "Personal site" \
		  --image cover.png --github-link https://github.com/example/portfolio

		# Upload to GCS and Firestore
		upload submit --blob-backend gcs --bucket my-bucket \
		  --doc-backend firestore --firestore-project my-project \
		  --title "Portfolio" --description "Personal site" \
		  --image cover.png --github-link https://github.com/example/portfolio`)
)

func NewSubmitOptions(streams iooption.IOStreams) *SubmitOptions {
	return &SubmitOptions{
		BackendOptions: NewBackendOptions(),
		IOStreams:      streams,
	}
}

func NewSubmitCommand(o *SubmitOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "submit",
		DisableFlagsInUseLine: true,
		Short:                 "Upload a project image and record",
		Long:                  submitLong,
		Example:               submitExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.Title, "title", "", "Project title")
	flags.StringVar(&o.Description, "description", "", "Project description")
	flags.StringVarP(&o.ImagePath, "image", "i", "", "Path to the project image")
	flags.StringVar(&o.GithubLink, "github-link", "", "Link to the project's source repository")

	o.BackendOptions.AddFlags(cmd)

	return cmd
}

func (o *SubmitOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
	}
	return nil
}

func (o *SubmitOptions) Validate() error {
	if err := o.BackendOptions.Validate(); err != nil {
		return err
	}

	// A missing image is reported by the workflow together with any other
	// missing field.
	if o.ImagePath != "" {
		content, err := os.ReadFile(o.ImagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		o.image = &project.Image{Name: filepath.Base(o.ImagePath), Content: content}
	}

	return nil
}

func (o *SubmitOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := o.Logger(o.ErrOut)

	b, err := o.Open(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	wf := workflow.New(b.blobs, b.docs, o.WorkflowOptions(nil, logger))
	wf.SetTitle(o.Title)
	wf.SetDescription(o.Description)
	wf.SetGithubLink(o.GithubLink)
	wf.SetImage(o.image)

	fmt.Fprintf(o.Out, "Uploading project %q...\n", o.Title)
	result, err := wf.Submit(ctx)
	if err != nil {
		var se *workflow.SubmitError
		if errors.As(err, &se) && se.Kind == workflow.KindMissingField {
			return fmt.Errorf("%s (missing: %s)", workflow.MessageMissingFields, strings.Join(se.Fields, ", "))
		}
		return fmt.Errorf("%s: %w", workflow.NoticeFailure, err)
	}

	fmt.Fprintln(o.Out, workflow.NoticeSuccess)
	fmt.Fprintf(o.Out, "Document: %s\n", result.DocumentID)
	fmt.Fprintf(o.Out, "Image URL: %s\n", result.Record.ImageURL)
	return nil
}
