package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/pcforge/storefront/internal/client"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/reconcile"
	"github.com/spf13/cobra"
)

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage your cart",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cart, merging the guest cart after login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := reconcile.NewService(a.local, a.api, a.log).Fetch(cmd.Context())
			printCart(a.out, v, !a.loggedIn())
			return nil
		},
	}

	var quantity int
	var buildName string
	add := &cobra.Command{
		Use:   "add <id|slug>",
		Short: "Add a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := a.api.GetProduct(ctx, args[0])
			if err != nil {
				return err
			}
			if a.loggedIn() {
				v, err := a.api.AddItems(ctx, []domain.NewLine{{ProductID: p.ID, Quantity: quantity, CustomBuildName: buildName}})
				if !errors.Is(err, client.ErrNoSession) {
					if err != nil {
						return err
					}
					printCart(a.out, v, false)
					return nil
				}
				a.log.Warn("session rejected, adding to the guest cart")
			}
			a.local.Add(ctx, p.Snapshot(), quantity, buildName)
			printCart(a.out, a.local.View(ctx), true)
			return nil
		},
	}
	add.Flags().IntVarP(&quantity, "quantity", "n", 1, "quantity, 1 to 8")
	add.Flags().StringVar(&buildName, "build", "", "label the line with a build name")

	update := &cobra.Command{
		Use:   "update <line|product> <quantity>",
		Short: "Change a line's quantity",
		Long:  "Account cart lines are addressed by line id, guest lines by product id.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be a number: %w", err)
			}
			ctx := cmd.Context()
			if a.loggedIn() {
				v, err := a.api.UpdateQuantity(ctx, args[0], qty)
				if err != nil {
					return err
				}
				printCart(a.out, v, false)
				return nil
			}
			productID, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			a.local.UpdateQuantity(ctx, productID, qty)
			printCart(a.out, a.local.View(ctx), true)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:     "remove <line|product>",
		Aliases: []string{"rm"},
		Short:   "Remove a line",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.loggedIn() {
				v, err := a.api.RemoveLine(ctx, args[0])
				if err != nil {
					return err
				}
				printCart(a.out, v, false)
				return nil
			}
			productID, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			a.local.Remove(ctx, productID)
			printCart(a.out, a.local.View(ctx), true)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a.local.Clear(ctx)
			if a.loggedIn() {
				if err := clearServerCart(ctx, a.api); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, "cart cleared")
			return nil
		},
	}

	cmd.AddCommand(show, add, update, remove, clearCmd)
	return cmd
}

func clearServerCart(ctx context.Context, api *client.Client) error {
	v, err := api.FetchCart(ctx)
	if err != nil {
		return err
	}
	for _, l := range v.Lines {
		if _, err := api.RemoveLine(ctx, l.ID); err != nil {
			return fmt.Errorf("failed to remove line %s: %w", l.ID, err)
		}
	}
	return nil
}

func parseProductID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("guest cart lines are addressed by product id, got %q", s)
	}
	return id, nil
}
