package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/adsync"
	"github.com/unkn0wn-root/adsync/orders"
	"github.com/unkn0wn-root/adsync/sse"
)

var errNotLoggedIn = errors.New("no user session; pass --email and --password or set ADSYNC_EMAIL and ADSYNC_PASSWORD")

func newLoginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check credentials and show the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd, func(c context.Context, s *session) error {
				if s.cfg.Auth.Email == "" || s.cfg.Auth.Password == "" {
					return errNotLoggedIn
				}
				u, err := currentUser(c, s)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s %s <%s> (%s)\n", u.FirstName, u.LastName, u.Email, u.ID)
				return err
			})
		},
	}
}

func newOrdersCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd, func(c context.Context, s *session) error {
				if watch {
					return watchOrders(c, s, cmd.OutOrStdout())
				}
				r, err := s.client.Query(c, orders.AllOrdersKey())
				if err != nil {
					return err
				}
				list := orders.AllOrders(r)
				return emit(cmd.OutOrStdout(), ctx.flags.json, list, orderHeaders, orderRows(list), nil)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep the list open and apply live order updates")
	return cmd
}

func newOrderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "order <id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd, func(c context.Context, s *session) error {
				r, err := s.client.Query(c, orders.OrderKey(args[0]))
				if err != nil {
					return err
				}
				o := orders.OrderOf(r)
				if o == nil {
					return fmt.Errorf("order %s not found", args[0])
				}
				return emit(cmd.OutOrStdout(), ctx.flags.json, o, []string{"Field", "Value"}, orderDetailRows(o), nil)
			})
		},
	}
}

func newProductsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "products <order-id>",
		Short: "Show the generated products of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd, func(c context.Context, s *session) error {
				r, err := s.client.Query(c, orders.ProductsKey(args[0]))
				if err != nil {
					return err
				}
				list := orders.Products(r)
				return emit(cmd.OutOrStdout(), ctx.flags.json, list, []string{"ID", "Name", "Script"}, productRows(list), nil)
			})
		},
	}
}

func newEditScriptCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "edit-script <order-id> <product-id> <script>",
		Short: "Rewrite a product script",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, productID, script := args[0], args[1], args[2]
			return ctx.run(cmd, func(c context.Context, s *session) error {
				if _, err := s.client.Query(c, orders.ProductsKey(orderID)); err != nil {
					return err
				}
				u := s.client.Optimistic(orders.EditProductPatch(orderID, productID, script))
				out, err := u.Run(c, orders.EditProduct(productID, script))
				if err != nil {
					return fmt.Errorf("edit %s (%s): %w", productID, u.State(), err)
				}
				r, err := s.client.Fetch(c, orders.ProductsKey(orderID))
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if ack, ok := out.(*orders.Ack); ok && ack.Message != "" {
					fmt.Fprintln(w, ack.Message)
				}
				list := orders.Products(r)
				return emit(w, ctx.flags.json, list, []string{"ID", "Name", "Script"}, productRows(list), nil)
			})
		},
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <order-id>",
		Short: "Start video generation for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd, func(c context.Context, s *session) error {
				out, err := s.client.Mutate(c, orders.GenerateAd(args[0]))
				if err != nil {
					return err
				}
				msg := "generation started"
				if ack, ok := out.(*orders.Ack); ok && ack.Message != "" {
					msg = ack.Message
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
				return err
			})
		},
	}
}

func newAvatarsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "avatars",
		Short: "List presenter avatars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd, func(c context.Context, s *session) error {
				r, err := s.client.Query(c, orders.AvatarsKey())
				if err != nil {
					return err
				}
				list := orders.Avatars(r)
				return emit(cmd.OutOrStdout(), ctx.flags.json, list, []string{"ID", "Name", "Gender", "Preview"}, avatarRows(list), nil)
			})
		},
	}
}

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List narration voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd, func(c context.Context, s *session) error {
				r, err := s.client.Query(c, orders.VoicesKey())
				if err != nil {
					return err
				}
				list := orders.Voices(r)
				if language != "" {
					list = orders.VoicesForLanguage(list, language)
				}
				return emit(cmd.OutOrStdout(), ctx.flags.json, list, []string{"ID", "Name", "Gender", "Language"}, voiceRows(list), nil)
			})
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Only voices for this script language")
	return cmd
}

func currentUser(ctx context.Context, s *session) (*orders.User, error) {
	r, err := s.client.Query(ctx, orders.UserKey())
	if err != nil {
		var te *adsync.TransportError
		if errors.As(err, &te) && te.Status == http.StatusUnauthorized {
			return nil, errNotLoggedIn
		}
		return nil, err
	}
	u := orders.UserOf(r)
	if u == nil || u.ID == "" {
		return nil, errNotLoggedIn
	}
	return u, nil
}

// watchOrders renders the order list and redraws it whenever the cached
// list changes: through refetches or through pushed order updates.
func watchOrders(ctx context.Context, s *session, w io.Writer) error {
	u, err := currentUser(ctx, s)
	if err != nil {
		return err
	}

	// load before the stream opens so pushed updates have a list to patch
	if _, err := s.client.Query(ctx, orders.AllOrdersKey()); err != nil {
		return err
	}
	sub, err := s.client.Subscribe(orders.AllOrdersKey())
	if err != nil {
		return err
	}
	defer sub.Close()

	dialer := &sse.Dialer{
		BaseURL:    s.transport.BaseURL(),
		HTTPClient: s.transport.HTTPClient(),
		Logger:     s.log,
	}
	rec := s.client.NewReconciler(dialer)
	defer rec.Close()
	orders.RegisterPush(rec)

	lease, err := rec.Acquire(ctx, u.ID)
	if err != nil {
		return err
	}
	defer lease.Release()

	superviseErr := make(chan error, 1)
	go func() {
		superviseErr <- sse.Supervise(ctx, rec, dialer, u.ID, sse.SuperviseOptions{
			InitialInterval: s.cfg.Push.InitialBackoff,
			MaxInterval:     s.cfg.Push.MaxBackoff,
			Logger:          s.log,
		})
	}()

	changed, stop := rec.Watch()
	defer stop()

	render := func() {
		r := sub.Result()
		switch {
		case r.HasValue():
			list := orders.AllOrders(r)
			fmt.Fprintln(w, renderTable(orderHeaders, orderRows(list), nil))
		case r.Status == adsync.StatusError:
			fmt.Fprintf(w, "orders unavailable: %v\n", r.Err)
			return
		default:
			return
		}
		fmt.Fprintf(w, "live updates: %s\n", rec.State())
	}
	render()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			render()
		case <-changed:
			s.log.Debug("push state", adsync.Fields{"state": rec.State().String()})
		case err := <-superviseErr:
			return err
		}
	}
}
