package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(unprocessedCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(walletAdjustCmd)

	processCmd.Flags().String("note", "", "Note stored on the account transaction")
	processCmd.Flags().Bool("using-cashback", false, "Process a cashback payback")

	unprocessedCmd.Flags().Duration("older-than", 0, "Only list paybacks received longer ago than this")
	unprocessedCmd.Flags().Int("limit", 0, "Maximum rows (defaults to the sweep limit)")

	walletAdjustCmd.Flags().Int64("available", 0, "Signed change to the available balance")
	walletAdjustCmd.Flags().Int64("accruing", 0, "Signed change to the accruing balance")
	walletAdjustCmd.Flags().String("reason", string(models.ReasonAdminAdjustment), "admin_adjustment or cashback_earned")
}

var processCmd = &cobra.Command{
	Use:   "process PAYBACK_ID",
	Short: "Allocate an unprocessed payback transaction",
	Long: `Re-drive a payback transaction that was recorded but not allocated.
Processing an already processed payback is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid payback id %q", args[0])
	}
	note, _ := cmd.Flags().GetString("note")
	usingCashback, _ := cmd.Flags().GetBool("using-cashback")

	svc, closeFn, err := openService()
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.ProcessRepaymentTrx(cmd.Context(), id, note, usingCashback)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), id, res)
}

func printResult(w io.Writer, id int64, res *service.RepaymentResult) error {
	if res == nil {
		fmt.Fprintf(w, "Payback transaction %d was already processed\n", id)
		return nil
	}
	at := res.AccountTransaction
	fmt.Fprintf(w, "Payback transaction %d processed as account transaction %d\n", id, at.ID)
	fmt.Fprintf(w, "  late fee:    %d\n", at.TowardsLateFee)
	fmt.Fprintf(w, "  interest:    %d\n", at.TowardsInterest)
	fmt.Fprintf(w, "  principal:   %d\n", at.TowardsPrincipal)
	fmt.Fprintf(w, "  overpayment: %d\n", res.Overpayment)
	if len(res.PaidOffAccountPaymentIDs) > 0 {
		fmt.Fprintf(w, "  paid off:    %v\n", res.PaidOffAccountPaymentIDs)
	}
	return nil
}

var unprocessedCmd = &cobra.Command{
	Use:   "unprocessed",
	Short: "List payback transactions waiting for an operator",
	Args:  cobra.NoArgs,
	RunE:  runUnprocessed,
}

func runUnprocessed(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	limit, _ := cmd.Flags().GetInt("limit")

	svc, closeFn, err := openService()
	if err != nil {
		return err
	}
	defer closeFn()

	pts, err := svc.ListUnprocessed(cmd.Context(), olderThan, limit)
	if err != nil {
		return err
	}
	return printUnprocessed(cmd.OutOrStdout(), pts)
}

func printUnprocessed(w io.Writer, pts []models.PaybackTransaction) error {
	if len(pts) == 0 {
		fmt.Fprintln(w, "No unprocessed payback transactions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tACCOUNT\tAMOUNT\tSERVICE\tRECEIPT\tRECEIVED")
	for _, pt := range pts {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n",
			pt.ID, pt.AccountID, pt.Amount, pt.Service, pt.TransactionID, pt.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [PASSWORD]",
	Short: "Print a bcrypt hash for an operator password",
	Long:  `Hash an operator password for the operator table. Reads stdin when no argument is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		hash, err := service.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func readPassword(in io.Reader, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && len(line) == 0 {
		return "", fmt.Errorf("provide password as argument or on stdin")
	}
	password := strings.TrimSpace(line)
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	return password, nil
}

var walletAdjustCmd = &cobra.Command{
	Use:   "wallet-adjust CUSTOMER_ID",
	Short: "Apply an operator change to a cashback wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		customerID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid customer id %q", args[0])
		}
		available, _ := cmd.Flags().GetInt64("available")
		accruing, _ := cmd.Flags().GetInt64("accruing")
		reason, _ := cmd.Flags().GetString("reason")

		svc, closeFn, err := openService()
		if err != nil {
			return err
		}
		defer closeFn()

		history, err := svc.AdjustWallet(cmd.Context(), service.WalletChange{
			CustomerID: customerID,
			Accruing:   accruing,
			Available:  available,
			Reason:     models.WalletChangeReason(reason),
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	},
}
