package main

import (
	"fmt"
	"strings"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/service"
	"github.com/spf13/cobra"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Save and share PC builds",
	}

	var name string
	var parts map[string]int64
	create := &cobra.Command{
		Use:     "create",
		Short:   "Save a build",
		Example: "  pcforge build create --name 'Budget 1080p' --part CPU=12 --part GPU=31",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := service.BuildInput{Name: name, Components: map[domain.Category]int64{}}
			for slot, id := range parts {
				in.Components[domain.Category(strings.ToUpper(slot))] = id
			}
			b, err := a.api.CreateBuild(cmd.Context(), in)
			if err != nil {
				return err
			}
			printBuild(a.out, b)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "build name")
	create.Flags().StringToInt64Var(&parts, "part", nil, "slot=productID, repeatable")
	_ = create.MarkFlagRequired("name")

	show := &cobra.Command{
		Use:   "show <share-id>",
		Short: "Show a shared build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.api.GetBuild(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printBuild(a.out, b)
			return nil
		},
	}

	addToCart := &cobra.Command{
		Use:   "add <share-id>",
		Short: "Put every part of a build into the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.loggedIn() {
				return errLoginRequired
			}
			v, err := a.api.AddBuildToCart(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "build added to cart")
			printCart(a.out, v, false)
			return nil
		},
	}

	cmd.AddCommand(create, show, addToCart)
	return cmd
}
