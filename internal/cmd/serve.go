package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/project-upload/internal/operation"
	"github.com/tomasbasham/project-upload/internal/server"
	"github.com/tomasbasham/project-upload/internal/workflow"
)

type ServeOptions struct {
	*BackendOptions

	iooption.IOStreams
}

var (
	serveLong = templates.LongDesc(`
		Start the project upload HTTP server. The server hosts a single
		upload form that clients edit and submit over JSON.`)

	serveExample = templates.Examples(`
		# Start on the default port, storing images under ./uploads
		upload serve

		# Start on a custom port with a specific GCS bucket and Firestore
		upload serve --port 9090 --blob-backend gcs --bucket my-bucket \
		  --doc-backend firestore --firestore-project my-project`)
)

func NewServeOptions(streams iooption.IOStreams) *ServeOptions {
	return &ServeOptions{
		BackendOptions: NewBackendOptions(),
		IOStreams:      streams,
	}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the project upload HTTP server",
		Long:    serveLong,
		Example: serveExample,
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

	cmd.Flags().IntVarP(&o.Port, "port", "p", o.Port, "Port to listen on")
	o.BackendOptions.AddFlags(cmd)

	return cmd
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *ServeOptions) Validate() error {
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	return o.BackendOptions.Validate()
}

func (o *ServeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := o.Logger(o.ErrOut)

	b, err := o.Open(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	history := operation.NewMemoryStore()
	wf := workflow.New(b.blobs, b.docs, o.WorkflowOptions(history, logger))
	srv := server.New(wf, history, logger)

	logger.Info().
		Str("blob_backend", o.BlobBackend).
		Str("doc_backend", o.DocBackend).
		Msg("starting project upload server")

	return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", o.Port))
}
