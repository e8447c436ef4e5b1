package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/tributary/internal/graph"
	"github.com/roach88/tributary/internal/model"
)

// RecordsOptions holds flags for the records subcommands.
type RecordsOptions struct {
	*RootOptions
	Limit int
}

// RecordView is a record with its edges and media, as shown by records show.
type RecordView struct {
	Record model.Record  `json:"record"`
	Edges  []graph.Edge  `json:"edges"`
	Media  []model.Media `json:"media"`
}

// NewRecordsCommand creates the records command group.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Show, list and merge graph records",
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a record with its links and media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsShow(cmd.Context(), opts, args[0], cmd)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsList(cmd.Context(), opts, cmd)
		},
	}
	list.Flags().IntVar(&opts.Limit, "limit", 50, "maximum records to show (0 for all)")

	mergeCmd := &cobra.Command{
		Use:   "merge <source-id> <target-id>",
		Short: "Merge a duplicate record into another",
		Long: `Fold the source record into the target.

Fields are combined into the target, every link and media item of the source
is moved to the target, and the source is tombstoned. The printed snapshot
ID undoes the merge with "records unmerge".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsMerge(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	unmerge := &cobra.Command{
		Use:   "unmerge <snapshot-id>",
		Short: "Undo a merge from its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordsUnmerge(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.AddCommand(show, list, mergeCmd, unmerge)
	return cmd
}

func runRecordsShow(ctx context.Context, opts *RecordsOptions, arg string, cmd *cobra.Command) error {
	id, err := parseID("record", arg)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.graph.Record(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load record", err)
	}
	edges, err := a.graph.Edges(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load links", err)
	}
	media, err := a.store.MediaForRecord(ctx, id)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load media", err)
	}

	view := RecordView{Record: rec, Edges: edges, Media: media}
	return a.out.Render(view, func(w io.Writer) {
		writeRecordText(w, rec)
		if len(media) > 0 {
			fmt.Fprintln(w, "Media:")
			for _, m := range media {
				fmt.Fprintf(w, "  [%d] %s\n", m.ID, m.URL)
			}
		}
		if len(edges) > 0 {
			fmt.Fprintln(w, "Links:")
			writeEdgesText(w, edges)
		}
	})
}

func runRecordsList(ctx context.Context, opts *RecordsOptions, cmd *cobra.Command) error {
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.graph.Records(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list records", err)
	}
	return a.out.Render(records, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintln(w, "No records")
			return
		}
		for _, r := range records {
			fmt.Fprintf(w, "%-6d %-10s %s\n", r.ID, r.Type, deref(r.Title))
		}
	})
}

func runRecordsMerge(ctx context.Context, opts *RecordsOptions, sourceArg, targetArg string, cmd *cobra.Command) error {
	sourceID, err := parseID("source record", sourceArg)
	if err != nil {
		return err
	}
	targetID, err := parseID("target record", targetArg)
	if err != nil {
		return err
	}
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.merge.Merge(ctx, sourceID, targetID)
	if err != nil {
		return WrapExitError(ExitFailure, "merge failed", err)
	}
	return a.out.Render(res, func(w io.Writer) {
		fmt.Fprintf(w, "Merged record %d into %d\n", res.DeletedID, res.Updated.ID)
		fmt.Fprintf(w, "Snapshot: %s\n", res.Snapshot.ID)
		fmt.Fprintf(w, "Touched:  %v\n", res.TouchedIDs)
		fmt.Fprintf(w, "Links moved %d, dropped %d; media moved %d, dropped %d\n",
			len(res.Snapshot.RepointedLinks), len(res.Snapshot.DroppedLinks),
			len(res.Snapshot.RepointedMedia), len(res.Snapshot.DroppedMedia))
		fmt.Fprintln(w)
		writeRecordText(w, res.Updated)
	})
}

func runRecordsUnmerge(ctx context.Context, opts *RecordsOptions, snapshotID string, cmd *cobra.Command) error {
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.merge.Undo(ctx, snapshotID)
	if err != nil {
		return WrapExitError(ExitFailure, "unmerge failed", err)
	}
	return a.out.Render(res, func(w io.Writer) {
		fmt.Fprintf(w, "Restored record %d from record %d\n", res.Source.ID, res.Target.ID)
	})
}

func writeRecordText(w io.Writer, r model.Record) {
	fmt.Fprintf(w, "Record %d (%s)\n", r.ID, r.Type)
	fmt.Fprintf(w, "  Title:   %s\n", deref(r.Title))
	if r.URL != nil {
		fmt.Fprintf(w, "  URL:     %s\n", *r.URL)
	}
	if r.ExternalKey != nil {
		fmt.Fprintf(w, "  Key:     %s\n", *r.ExternalKey)
	}
	fmt.Fprintf(w, "  Rating:  %d\n", r.Rating)
	fmt.Fprintf(w, "  Curated: %t  Private: %t\n", r.IsCurated, r.IsPrivate)
	fmt.Fprintf(w, "  Sources: %v\n", r.Sources)
	fmt.Fprintf(w, "  Created: %s\n", r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
}

func writeEdgesText(w io.Writer, edges []graph.Edge) {
	for _, e := range edges {
		fmt.Fprintf(w, "  [%d] %-8s %s %d", e.Link.ID, e.Direction, e.Label.Name, e.OtherID)
		if e.Link.Notes != nil {
			fmt.Fprintf(w, "  (%s)", *e.Link.Notes)
		}
		fmt.Fprintln(w)
	}
}

func parseID(what, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", what, arg))
	}
	return id, nil
}

func deref(s *string) string {
	if s == nil {
		return "(untitled)"
	}
	return *s
}
