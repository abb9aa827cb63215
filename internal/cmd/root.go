package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		Upload projects: store a project image in blob storage and record the
		project, with the image's download URL, in a document database.`)

	rootExamples = templates.Examples(`
		# Upload a single project
		upload submit --title "Portfolio" --description "Personal site" \
		  --image cover.png --github-link https://github.com/example/portfolio

		# Serve the upload form over HTTP
		upload serve --port 8080`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// UploadOptions defines the options for the `upload` command.
type UploadOptions struct {
	iooption.IOStreams
}

// NewUploadOptions provides an initialised UploadOptions instance.
func NewUploadOptions(streams iooption.IOStreams) *UploadOptions {
	return &UploadOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `upload` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewUploadOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `upload` command and its nested
// children.
func NewRootCommandWithArgs(o *UploadOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "upload [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Project image and record upload tool",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	cmd.AddCommand(NewSubmitCommand(NewSubmitOptions(o.IOStreams)))
	cmd.AddCommand(NewServeCommand(NewServeOptions(o.IOStreams)))

	// The globlal normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
