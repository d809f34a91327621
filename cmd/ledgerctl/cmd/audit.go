package cmd

import (
	"errors"
	"fmt"

	"github.com/nzoschke/dreamsaver/internal/repository"
	"github.com/nzoschke/dreamsaver/internal/service"
	"github.com/spf13/cobra"
)

var errDiscrepancies = errors.New("ledger discrepancies found")

func AuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Compare every goal's saved amount with the sum of its deposits",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()

			ledger := service.NewLedgerService(
				repository.NewDepositRepository(database),
				repository.NewGoalRepository(database),
			)

			found, err := ledger.Audit(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "ledger consistent")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %12s  %12s\n", "GOAL", "SAVED", "LEDGER")
			for _, d := range found {
				fmt.Fprintf(out, "%-36s  %12d  %12d\n", d.GoalID, d.Saved, d.LedgerSum)
			}
			return fmt.Errorf("%w: %d goal(s)", errDiscrepancies, len(found))
		},
	}
}
