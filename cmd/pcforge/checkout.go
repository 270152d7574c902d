package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/service"
	"github.com/spf13/cobra"
)

var errLoginRequired = errors.New("log in first: pcforge login --phone <number>")

func newCheckoutCmd(a *app) *cobra.Command {
	var (
		method   string
		idemKey  string
		shipping domain.ShippingAddress
	)
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for everything in the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.loggedIn() {
				return errLoginRequired
			}
			ctx := cmd.Context()
			cart, err := a.api.FetchCart(ctx)
			if err != nil {
				return err
			}
			if len(cart.Lines) == 0 {
				return errors.New("cart is empty")
			}

			items := make([]service.CheckoutItem, 0, len(cart.Lines))
			for _, l := range cart.Lines {
				items = append(items, service.CheckoutItem{
					ProductID:       l.ProductID,
					Quantity:        l.Quantity,
					CustomBuildName: l.CustomBuildName,
				})
			}
			if shipping.Phone == "" {
				shipping.Phone = a.session.Phone
			}
			if idemKey == "" {
				idemKey = uuid.NewString()
			}

			res, err := a.api.PlaceOrder(ctx, service.CheckoutRequest{
				Items:           items,
				ShippingDetails: shipping,
				PaymentMethod:   domain.PaymentMethod(method),
				IdempotencyKey:  idemKey,
			})
			if err != nil {
				return err
			}
			printCheckout(a.out, res)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&method, "payment", string(domain.PaymentMethodCOD), "cod or online")
	f.StringVar(&idemKey, "idempotency-key", "", "reuse to retry the same order safely (default random)")
	f.StringVar(&shipping.FullName, "name", "", "recipient name")
	f.StringVar(&shipping.Phone, "phone", "", "recipient phone (default login phone)")
	f.StringVar(&shipping.Email, "email", "", "recipient email")
	f.StringVar(&shipping.AddressLine1, "address", "", "address line 1")
	f.StringVar(&shipping.AddressLine2, "address2", "", "address line 2")
	f.StringVar(&shipping.City, "city", "", "city")
	f.StringVar(&shipping.State, "state", "", "state")
	f.StringVar(&shipping.Pincode, "pincode", "", "6-digit pincode")
	return cmd
}

func newPayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Online payment",
	}

	var cb service.PaymentCallback
	confirm := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a completed gateway payment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.loggedIn() {
				return errLoginRequired
			}
			order, err := a.api.VerifyPayment(cmd.Context(), cb)
			if err != nil {
				return err
			}
			printOrder(a.out, order)
			return nil
		},
	}
	confirm.Flags().StringVar(&cb.OrderID, "order", "", "gateway order id")
	confirm.Flags().StringVar(&cb.PaymentID, "payment", "", "gateway payment id")
	confirm.Flags().StringVar(&cb.Signature, "signature", "", "gateway signature")
	for _, name := range []string{"order", "payment", "signature"} {
		_ = confirm.MarkFlagRequired(name)
	}

	cmd.AddCommand(confirm)
	return cmd
}

func newOrdersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List your orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.loggedIn() {
				return errLoginRequired
			}
			orders, err := a.api.ListOrders(cmd.Context())
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				fmt.Fprintln(a.out, "no orders yet")
			}
			for _, o := range orders {
				printOrder(a.out, o)
			}
			return nil
		},
	}
}
