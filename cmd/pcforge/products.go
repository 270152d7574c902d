package main

import (
	"strings"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/spf13/cobra"
)

func newProductsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"p"},
		Short:   "Browse the catalog",
	}

	var filter domain.ProductFilter
	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Category = domain.Category(strings.ToUpper(category))
			products, err := a.api.ListProducts(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printProducts(a.out, products)
			return nil
		},
	}
	list.Flags().StringVarP(&category, "category", "c", "", "CPU, GPU, MOTHERBOARD, RAM, STORAGE, PSU, CASE or COOLER")
	list.Flags().StringVarP(&filter.Tag, "tag", "t", "", "only products with this tag")
	list.Flags().StringVarP(&filter.Search, "search", "q", "", "search in names")
	list.Flags().IntVar(&filter.Limit, "limit", 24, "page size")
	list.Flags().IntVar(&filter.Offset, "offset", 0, "page offset")

	show := &cobra.Command{
		Use:   "show <id|slug>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.api.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printProduct(a.out, p)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
