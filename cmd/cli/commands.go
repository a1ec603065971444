package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"atelier-service/internal/apiclient"
	"atelier-service/internal/models"
	"atelier-service/internal/util"

	"github.com/spf13/cobra"
)

const defaultAPI = "http://localhost:8080"

// session holds the flags shared by every command. Tokens live in the
// client's memory store for the duration of one run.
type session struct {
	api      string
	email    string
	password string
	timeout  time.Duration
	client   *apiclient.Client
}

func newRootCmd() *cobra.Command {
	s := &session{}

	root := &cobra.Command{
		Use:           "atelier",
		Short:         "Operator tool for the VHA Atelier API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			s.client = apiclient.New(s.api)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&s.api, "api", envOr("ATELIER_API_URL", defaultAPI), "API base URL")
	flags.StringVar(&s.email, "email", os.Getenv("ATELIER_EMAIL"), "account email")
	flags.StringVar(&s.password, "password", os.Getenv("ATELIER_PASSWORD"), "account password")
	flags.DurationVar(&s.timeout, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(
		newLoginCmd(s),
		newOrdersCmd(s),
		newPaymentCmd(s),
		newStatsCmd(s),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *session) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), s.timeout)
}

// login signs in with the configured credentials
func (s *session) login(ctx context.Context) (*apiclient.AuthResult, error) {
	if s.email == "" || s.password == "" {
		return nil, errors.New("credentials required: set --email/--password or ATELIER_EMAIL/ATELIER_PASSWORD")
	}
	return s.client.Login(ctx, s.email, s.password)
}

func newLoginCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check credentials and show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.context(cmd)
			defer cancel()

			result, err := s.login(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Signed in as %s <%s> (%s)\n", result.User.Name, result.User.Email, result.User.Role)
			return s.client.Logout(ctx)
		},
	}
}

func newOrdersCmd(s *session) *cobra.Command {
	orders := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and move orders",
	}

	var status string
	var page, limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.context(cmd)
			defer cancel()
			if _, err := s.login(ctx); err != nil {
				return err
			}
			result, err := s.client.AdminListOrders(ctx, page, limit, status)
			if err != nil {
				return err
			}
			printOrders(cmd.OutOrStdout(), result)
			return nil
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by order status")
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&limit, "limit", 20, "orders per page")

	var reason string
	setStatus := &cobra.Command{
		Use:   "status <orderId> <status>",
		Short: "Move an order to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()
			if _, err := s.login(ctx); err != nil {
				return err
			}
			order, err := s.client.AdminUpdateOrderStatus(ctx, id, args[1], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order %s is now %s\n", order.OrderNumber, order.Status)
			return nil
		},
	}
	setStatus.Flags().StringVar(&reason, "reason", "", "cancellation reason")

	orders.AddCommand(list, setStatus)
	return orders
}

func newPaymentCmd(s *session) *cobra.Command {
	payment := &cobra.Command{
		Use:   "payment",
		Short: "Payment reconciliation",
	}

	var paid bool
	var note string
	verify := &cobra.Command{
		Use:   "verify <orderId>",
		Short: "Record the outcome of a bank transfer check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := s.context(cmd)
			defer cancel()
			if _, err := s.login(ctx); err != nil {
				return err
			}
			view, err := s.client.AdminVerifyPayment(ctx, id, paid, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order %s: payment %s, status %s\n",
				view.OrderNumber, view.PaymentStatus, view.Status)
			return nil
		},
	}
	verify.Flags().BoolVar(&paid, "paid", false, "mark the transfer as received")
	verify.Flags().StringVar(&note, "note", "", "reconciliation note")

	payment.AddCommand(verify)
	return payment
}

func newStatsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the admin dashboard counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.context(cmd)
			defer cancel()
			if _, err := s.login(ctx); err != nil {
				return err
			}
			stats, err := s.client.DashboardStats(ctx)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return id, nil
}

func printOrders(w io.Writer, page *apiclient.Page[models.Order]) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tSTATUS\tPAYMENT\tTOTAL\tCREATED")
	for _, o := range page.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s/%s\t%s\t%s\n",
			o.ID, o.OrderNumber, o.Status, o.PaymentMethod, o.PaymentStatus,
			util.FormatVND(o.TotalAmount), o.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
	p := page.Pagination
	fmt.Fprintf(w, "page %d/%d, %d orders\n", p.Page, p.TotalPages, p.Total)
}

func printStats(w io.Writer, stats *apiclient.DashboardStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Users\t%d\n", stats.TotalUsers)
	fmt.Fprintf(tw, "Products\t%d\n", stats.TotalProducts)
	fmt.Fprintf(tw, "Orders\t%d\n", stats.TotalOrders)
	fmt.Fprintf(tw, "Revenue\t%s\n", util.FormatVND(stats.TotalRevenue))
	for _, status := range models.OrderStatuses {
		fmt.Fprintf(tw, "  %s\t%d\n", status, stats.OrdersByStatus[status])
	}
	tw.Flush()

	if len(stats.TopProducts) > 0 {
		fmt.Fprintln(w, "Top products:")
		for _, p := range stats.TopProducts {
			fmt.Fprintf(w, "  %s x%d (%s)\n", p.ProductName, p.Quantity, util.FormatVND(p.Revenue))
		}
	}
	if len(stats.LowStock) > 0 {
		fmt.Fprintln(w, "Low stock:")
		for _, p := range stats.LowStock {
			fmt.Fprintf(w, "  %s: %d left\n", p.Name, p.Stock)
		}
	}
}
