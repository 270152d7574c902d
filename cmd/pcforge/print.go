package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/service"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printProducts(w io.Writer, products []*domain.Product) {
	t := newTable(w)
	fmt.Fprintln(t, "ID\tSLUG\tCATEGORY\tNAME\tPRICE\tSTOCK")
	for _, p := range products {
		price := p.EffectivePrice().StringFixed(2)
		if p.IsOnSale {
			price += " (sale)"
		}
		fmt.Fprintf(t, "%d\t%s\t%s\t%s\t%s\t%d\n", p.ID, p.Slug, p.Category, p.Name, price, p.Stock)
	}
	t.Flush()
}

func printProduct(w io.Writer, p *domain.Product) {
	fmt.Fprintf(w, "%s (%s)\n", p.Name, p.Slug)
	fmt.Fprintf(w, "  id:        %d\n", p.ID)
	fmt.Fprintf(w, "  brand:     %s\n", p.Brand)
	fmt.Fprintf(w, "  category:  %s\n", p.Category)
	fmt.Fprintf(w, "  price:     %s", p.EffectivePrice().StringFixed(2))
	if p.IsOnSale {
		fmt.Fprintf(w, " (was %s)", p.RegularPrice.StringFixed(2))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  stock:     %d\n", p.Stock)
	if len(p.Tags) > 0 {
		names := make([]string, 0, len(p.Tags))
		for _, t := range p.Tags {
			names = append(names, t.Name)
		}
		fmt.Fprintf(w, "  tags:      %s\n", strings.Join(names, ", "))
	}
	if p.Description != "" {
		fmt.Fprintf(w, "\n%s\n", p.Description)
	}
}

// printCart shows line ids only for account carts; guest lines are
// addressed by product id.
func printCart(w io.Writer, v domain.CartView, guest bool) {
	if len(v.Lines) == 0 {
		fmt.Fprintln(w, "cart is empty")
		return
	}
	t := newTable(w)
	if guest {
		fmt.Fprintln(t, "PRODUCT\tNAME\tQTY\tPRICE\tSUBTOTAL\tBUILD")
	} else {
		fmt.Fprintln(t, "LINE\tPRODUCT\tNAME\tQTY\tPRICE\tSUBTOTAL\tBUILD")
	}
	for _, l := range v.Lines {
		if !guest {
			fmt.Fprintf(t, "%s\t", l.ID)
		}
		fmt.Fprintf(t, "%d\t%s\t%d\t%s\t%s\t%s\n",
			l.ProductID, l.Product.Name, l.Quantity,
			l.Product.EffectivePrice().StringFixed(2), l.Subtotal().StringFixed(2), l.CustomBuildName)
	}
	t.Flush()
	fmt.Fprintf(w, "\n%d item(s), subtotal %s\n", v.Count, v.Subtotal.StringFixed(2))
	if guest {
		fmt.Fprintln(w, "(guest cart, log in to keep it)")
	}
}

func printOrder(w io.Writer, o *domain.Order) {
	fmt.Fprintf(w, "order %s\n", o.ID)
	fmt.Fprintf(w, "  status:   %s / payment %s (%s)\n", o.Status, o.PaymentStatus, o.PaymentMethod)
	fmt.Fprintf(w, "  total:    %s %s", o.FinalAmount.StringFixed(2), o.Currency)
	if o.DiscountAmount.IsPositive() {
		fmt.Fprintf(w, " (saved %s)", o.DiscountAmount.StringFixed(2))
	}
	fmt.Fprintln(w)
	for _, item := range o.Items {
		fmt.Fprintf(w, "  - %d x %s @ %s\n", item.Quantity, item.ProductName, item.UnitPrice.StringFixed(2))
	}
}

func printCheckout(w io.Writer, res *service.CheckoutResult) {
	printOrder(w, res.Order.Order)
	if rp := res.Order.Razorpay; rp != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "complete payment for gateway order %s (%d %s minor units, key %s),\n",
			rp.OrderID, rp.Amount, rp.Currency, rp.KeyID)
		fmt.Fprintln(w, "then run: pcforge pay confirm --order <gateway order> --payment <payment id> --signature <signature>")
	}
}

func printBuild(w io.Writer, b *domain.BuildView) {
	fmt.Fprintf(w, "%s  [share id %s]\n", b.Name, b.ShareID)
	t := newTable(w)
	for _, part := range b.Parts {
		fmt.Fprintf(t, "  %s\t%s\t%s\n", part.Category, part.Product.Name, part.Product.EffectivePrice().StringFixed(2))
	}
	t.Flush()
	fmt.Fprintf(w, "total %s\n", b.TotalPrice.StringFixed(2))
}
