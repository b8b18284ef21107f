// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"coqpkg/internal/fetch"
	"coqpkg/internal/issue"
	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/project"
	"coqpkg/pkg/volume"
)

type publishFlagValues struct {
	dir    string
	prefix string
}

func newPublishCommand(app *App) *cobra.Command {
	flags := &publishFlagValues{}
	cmd := &cobra.Command{
		Use:   "publish <package>...",
		Short: "Upload built packages to S3-compatible storage",
		Long: `Upload NAME.coq-pkg and NAME.json from the output directory to the
bucket configured under s3. The archive is uploaded before its manifest.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), app, flags, args)
		},
	}
	cmd.Flags().StringVar(&flags.dir, "dir", "", "directory holding the packages (default build.output_dir)")
	cmd.Flags().StringVar(&flags.prefix, "prefix", "", "object key prefix (default s3.prefix)")
	return cmd
}

func runPublish(ctx context.Context, app *App, flags *publishFlagValues, names []string) error {
	cfg := app.Config.S3
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return &ExitError{Code: 1, Err: publishError(errors.New("s3.endpoint and s3.bucket must be set"), cfg.Endpoint)}
	}
	store, err := app.s3()
	if err != nil {
		return &ExitError{Code: 1, Err: publishError(err, cfg.Endpoint)}
	}

	dir := flags.dir
	if dir == "" {
		dir = app.Config.Build.OutputDir
	}
	prefix := flags.prefix
	if prefix == "" {
		prefix = cfg.Prefix
	}
	pub := &fetch.Publisher{Store: store, Prefix: prefix, Logger: app.Logger}

	disk := volume.NewDisk("")
	for _, name := range names {
		saved := project.SaveResult{
			ManifestPath: volume.Join(dir, name+coqpkg.ManifestExt),
			ArchivePath:  volume.Join(dir, name+coqpkg.ArchiveExt),
		}
		out, err := pub.Publish(ctx, disk, saved)
		if err != nil {
			return &ExitError{Code: 1, Err: publishError(err, name)}
		}
		app.printf("%s %s %s\n", SuccessStyle.Render("✓"), TitleStyle.Render(name), CmdStyle.Render(store.URI(out.ManifestKey)))
	}
	return nil
}

func publishError(err error, resource string) error {
	return issue.NewErrorContext().
		WithOperation("publish package").
		WithResource(resource).
		WithIssue(issue.PublishFailedId).
		Wrap(err).
		BuildError()
}
