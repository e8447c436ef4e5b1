package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/predicate"
)

// NewPredicatesCommand creates the predicates command group.
func NewPredicatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predicates",
		Short: "Inspect the relationship vocabulary",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List predicates with their inverses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredicatesList(rootOpts, cmd)
		},
	}

	cmd.AddCommand(list)
	return cmd
}

func runPredicatesList(opts *RootOptions, cmd *cobra.Command) error {
	preds := predicate.Default().All()
	out := newFormatter(opts, cmd)
	return out.Render(preds, func(w io.Writer) { writePredicatesText(w, preds) })
}

func writePredicatesText(w io.Writer, preds []model.Predicate) {
	fmt.Fprintf(w, "%-14s %-22s %-16s %s\n", "SLUG", "NAME", "TYPE", "INVERSE")
	for _, p := range preds {
		inverse := p.InverseSlug
		switch {
		case p.SelfInverse():
			inverse = "(self)"
		case !p.Canonical:
			inverse += " (stored)"
		}
		fmt.Fprintf(w, "%-14s %-22s %-16s %s\n", p.Slug, p.Name, p.Type, inverse)
	}
}
