package history

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/vasiliy-maslov/qrmenu-ordering/internal/money"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
)

const billTimeLayout = "02 Jan 2006 15:04"

// RenderBill renders a plain-text bill for an order in history.
func RenderBill(s order.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Order %s\n", s.ID)
	if s.TableNumber != "" {
		fmt.Fprintf(&b, "Table %s\n", s.TableNumber)
	}
	if s.CustomerName != "" {
		fmt.Fprintf(&b, "Customer %s\n", s.CustomerName)
	}
	if !s.PlacedAt.IsZero() {
		fmt.Fprintf(&b, "Placed %s\n", s.PlacedAt.Format(billTimeLayout))
	}
	b.WriteString("\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Item\tQty\tPrice\tTotal\t")
	for _, it := range s.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", itemLabel(it), it.Quantity, money.Format(it.UnitPrice), money.Format(it.TotalPrice))
	}
	fmt.Fprintln(tw, "\t\t\t\t")
	fmt.Fprintf(tw, "Subtotal\t\t\t%s\t\n", money.Format(s.Subtotal))
	if !s.Discount.IsZero() {
		label := "Discount"
		if s.CouponCode != "" {
			label += " (" + s.CouponCode + ")"
		}
		fmt.Fprintf(tw, "%s\t\t\t-%s\t\n", label, money.Format(s.Discount))
	}
	fmt.Fprintf(tw, "Total\t\t\t%s\t\n", money.Format(s.Total))
	_ = tw.Flush()

	return b.String()
}

func itemLabel(it order.Item) string {
	var extras []string
	if it.VariantName != "" {
		extras = append(extras, it.VariantName)
	}
	extras = append(extras, it.AddonNames...)
	if len(extras) == 0 {
		return it.Name
	}
	return it.Name + " (" + strings.Join(extras, ", ") + ")"
}
