package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

// errAuditFailed makes the process exit non-zero without repeating the report
var errAuditFailed = errors.New("billing audit found violations")

func (c *CLI) auditCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check every invoice against its payments",
		Long: `Check every invoice against its payments: paid amount equals the sum of
payments, balance due equals total minus paid, totals add up, and every
payment belongs to an existing invoice. Exits non-zero when anything fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refresh {
				if _, err := c.service().Refresh(cmd.Context()); err != nil {
					return err
				}
			}
			violations, err := c.service().Audit(cmd.Context())
			if err != nil {
				return err
			}
			if c.out.json() {
				if err := c.out.printJSON(violations); err != nil {
					return err
				}
			} else if len(violations) == 0 {
				c.out.line("No violations")
			} else {
				for _, v := range violations {
					c.out.line("%s", v)
				}
			}
			if len(violations) > 0 {
				cmd.SilenceErrors = true
				return errAuditFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refetch all records before auditing")
	return cmd
}
