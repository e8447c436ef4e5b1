package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// LinksOptions holds flags for the links subcommands.
type LinksOptions struct {
	*RootOptions
	Notes string
}

// NewLinksCommand creates the links command group.
func NewLinksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "links",
		Short: "Create, delete and list typed links between records",
	}

	create := &cobra.Command{
		Use:   "create <from-id> <to-id> <predicate>",
		Short: "Link two records",
		Long: `Link two records with a predicate from the vocabulary.

Either direction may be given: "2 1 creator_of" is stored as
"1 created_by 2". See "tributary predicates list".`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinksCreate(cmd.Context(), opts, args, cmd)
		},
	}
	create.Flags().StringVar(&opts.Notes, "notes", "", "free-text notes on the link")

	del := &cobra.Command{
		Use:   "delete <link-id>",
		Short: "Delete a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinksDelete(cmd.Context(), opts, args[0], cmd)
		},
	}

	list := &cobra.Command{
		Use:   "list <record-id>",
		Short: "List a record's outgoing and incoming links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinksList(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.AddCommand(create, del, list)
	return cmd
}

func runLinksCreate(ctx context.Context, opts *LinksOptions, args []string, cmd *cobra.Command) error {
	fromID, err := parseID("from record", args[0])
	if err != nil {
		return err
	}
	toID, err := parseID("to record", args[1])
	if err != nil {
		return err
	}
	var notes *string
	if opts.Notes != "" {
		notes = &opts.Notes
	}

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	link, err := a.graph.Connect(ctx, fromID, toID, args[2], notes)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create link", err)
	}
	return a.out.Render(link, func(w io.Writer) {
		fmt.Fprintf(w, "Link %d: %d -[%s]-> %d\n", link.ID, link.SourceID, link.Predicate, link.TargetID)
	})
}

func runLinksDelete(ctx context.Context, opts *LinksOptions, arg string, cmd *cobra.Command) error {
	id, err := parseID("link", arg)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.graph.DeleteLink(ctx, id); err != nil {
		return WrapExitError(ExitFailure, "failed to delete link", err)
	}
	return a.out.Render(map[string]int64{"deleted": id}, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted link %d\n", id)
	})
}

func runLinksList(ctx context.Context, opts *LinksOptions, arg string, cmd *cobra.Command) error {
	id, err := parseID("record", arg)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	edges, err := a.graph.Edges(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list links", err)
	}
	return a.out.Render(edges, func(w io.Writer) {
		if len(edges) == 0 {
			fmt.Fprintf(w, "Record %d has no links\n", id)
			return
		}
		writeEdgesText(w, edges)
	})
}
