package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pokecard-storefront/internal/shopper"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/apiclient"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/checkout"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/draft"
	"github.com/angelmondragon/pokecard-storefront/internal/shopper/pricing"
	"github.com/angelmondragon/pokecard-storefront/pkg/enums"
	"github.com/angelmondragon/pokecard-storefront/pkg/types"
)

type cli struct {
	app *shopper.App
	out io.Writer
}

func (c *cli) run(ctx context.Context, name string, args []string) error {
	switch name {
	case "products":
		return c.products(ctx, args)
	case "product":
		return c.product(ctx, args)
	case "add":
		return c.add(ctx, args)
	case "remove":
		return c.remove(ctx, args)
	case "qty":
		return c.qty(ctx, args)
	case "cart":
		return c.cart(ctx)
	case "promo":
		return c.promo(ctx, args)
	case "details":
		return c.details(ctx, args)
	case "checkout":
		return c.checkout(ctx)
	case "status":
		return c.status(ctx, args)
	case "login":
		return c.login(ctx, args)
	case "register":
		return c.register(ctx, args)
	case "resume":
		return c.resume(ctx)
	case "logout":
		return c.app.Logout(ctx)
	case "orders":
		return c.orders(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", name, usage)
}

func (c *cli) products(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("products", flag.ContinueOnError)
	search := fs.String("search", "", "search term")
	category := fs.String("category", "", "product category")
	page := fs.Int("page", 1, "page")
	limit := fs.Int("limit", 20, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	list, err := c.app.API.ListProducts(ctx, apiclient.ProductQuery{Page: *page, Limit: *limit, Category: *category, Search: *search})
	if err != nil {
		return err
	}
	for _, p := range list.Products {
		stock := "in stock"
		if !p.InStock {
			stock = "sold out"
		}
		fmt.Fprintf(c.out, "%-40s %-32s from %s  %s\n", p.Slug, p.Name, money(p.MinPriceCents), stock)
	}
	fmt.Fprintf(c.out, "page %d/%d (%d products)\n", list.Pagination.Page, list.Pagination.TotalPages, list.Pagination.Total)
	return nil
}

func (c *cli) product(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: product <slug>")
	}
	p, err := c.app.API.Product(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s (%s)\n%s\n", p.Name, p.SetName, p.Description)
	for _, v := range p.Variants {
		fmt.Fprintf(c.out, "  %s  %-10s %-8s %s  stock %d\n", v.ID, v.SKU, v.Language, money(v.PriceCents), v.Stock)
	}
	return nil
}

func (c *cli) add(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: add <slug> <variant-id|sku>")
	}
	line, err := c.app.AddToCart(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s x%d\n", line.ProductName, line.VariantName, line.Quantity)
	return nil
}

func (c *cli) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: remove <variant-id>")
	}
	c.app.Cart.Remove(ctx, args[0])
	return c.cart(ctx)
}

func (c *cli) qty(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: qty <variant-id> <quantity>")
	}
	requested, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	got := c.app.Cart.UpdateQuantity(ctx, args[0], requested)
	if got == 0 {
		return fmt.Errorf("%s is not in the cart", args[0])
	}
	if got != requested {
		fmt.Fprintf(c.out, "quantity set to %d (requested %d)\n", got, requested)
	}
	return c.cart(ctx)
}

func (c *cli) cart(ctx context.Context) error {
	summary, err := c.app.Summary(ctx)
	if err != nil {
		fmt.Fprintln(c.out, "(stock could not be refreshed, showing last known values)")
	}
	if len(summary.View.Lines) == 0 {
		fmt.Fprintln(c.out, "cart is empty")
		return nil
	}
	for _, line := range summary.View.Lines {
		note := ""
		if e, ok := summary.View.Errors[line.VariantID]; ok {
			note = "  ! " + e.Message()
		}
		fmt.Fprintf(c.out, "%s  %s %s  %s x%d = %s%s\n",
			line.VariantID, line.ProductName, line.VariantName,
			money(line.PriceCents), line.Quantity, money(line.PriceCents*line.Quantity), note)
	}
	printBreakdown(c.out, summary)
	return nil
}

func printBreakdown(out io.Writer, s shopper.Summary) {
	b := s.Breakdown
	fmt.Fprintf(out, "subtotal  %s\n", money(b.SubtotalCents))
	switch {
	case s.Promo != nil:
		fmt.Fprintf(out, "promo     -%s (%s)\n", money(b.DiscountCents), s.Promo.Code)
	case s.PromoRejected:
		fmt.Fprintln(out, "promo     code no longer applies")
	}
	fmt.Fprintf(out, "shipping  %s (%s)\n", money(b.Shipping.PriceCents), b.Shipping.Label)
	fmt.Fprintf(out, "total     %s\n", money(b.TotalCents))
}

func (c *cli) promo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("promo", flag.ContinueOnError)
	remove := fs.Bool("remove", false, "remove the applied code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *remove {
		return c.app.RemovePromo(ctx)
	}
	if fs.NArg() != 1 {
		return errors.New("usage: promo <code> | promo -remove")
	}
	app, err := c.app.ApplyPromo(ctx, fs.Arg(0))
	if errors.Is(err, pricing.ErrPromoRejected) {
		fmt.Fprintln(c.out, "this code is not valid")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s applied: -%s\n", app.Code, money(app.DiscountCents))
	return nil
}

func (c *cli) details(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("details", flag.ContinueOnError)
	email := fs.String("email", "", "contact email")
	name := fs.String("name", "", "full name")
	line1 := fs.String("line1", "", "address line 1")
	line2 := fs.String("line2", "", "address line 2")
	postal := fs.String("postal", "", "postal code")
	city := fs.String("city", "", "city")
	country := fs.String("country", "FR", "ISO country code")
	phone := fs.String("phone", "", "phone")
	method := fs.String("shipping", "", "shipping method code")
	if err := fs.Parse(args); err != nil {
		return err
	}
	saved, err := c.app.SaveDetails(ctx, draft.Draft{
		Email: *email,
		Shipping: types.ShippingAddress{
			FullName:     *name,
			AddressLine1: *line1,
			AddressLine2: *line2,
			PostalCode:   *postal,
			City:         *city,
			Country:      *country,
			Phone:        *phone,
		},
		ShippingMethodCode: *method,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "details saved, shipping %s, valid for %s\n", saved.ShippingMethodCode, c.app.Drafts.TTL())
	return nil
}

func (c *cli) checkout(ctx context.Context) error {
	out, err := c.app.Checkout.Start(ctx)
	return c.report(out, err)
}

func (c *cli) report(out checkout.Outcome, err error) error {
	if cerr, ok := checkout.AsError(err); ok {
		fmt.Fprintf(c.out, "checkout %s: %s\n", cerr.Kind, cerr.Message)
		conflicts := cerr.Conflicts
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].VariantID < conflicts[j].VariantID })
		for _, conflict := range conflicts {
			fmt.Fprintf(c.out, "  %s: %s (%d available)\n", conflict.VariantID, strings.ToLower(conflict.Reason), conflict.Available)
		}
		return nil
	}
	if err != nil {
		return err
	}
	switch {
	case out.Skipped == checkout.SkipEmptyCart:
		fmt.Fprintln(c.out, "cart is empty")
	case out.Skipped == checkout.SkipInFlight:
		fmt.Fprintln(c.out, "checkout already in progress")
	case out.LoginURL != "":
		fmt.Fprintln(c.out, "sign in to continue; your cart and details are saved")
	default:
		fmt.Fprintf(c.out, "session %s\n", out.SessionID)
	}
	return nil
}

func (c *cli) status(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: status <session-id>")
	}
	st, err := c.app.CheckoutStatus(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s  %s  total %s\n", st.CheckoutID, st.Status, money(st.TotalCents))
	if st.OrderNumber != "" {
		fmt.Fprintf(c.out, "order %s\n", st.OrderNumber)
	}
	if st.Status == enums.CheckoutSessionCompleted {
		fmt.Fprintln(c.out, "thank you, your cart has been emptied")
	}
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	out, resumed, err := c.app.Login(ctx, *email, *password)
	return c.afterSignIn(out, resumed, err)
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	out, resumed, err := c.app.Register(ctx, apiclient.RegisterRequest{
		Email: *email, Password: *password, FirstName: *first, LastName: *last,
	})
	return c.afterSignIn(out, resumed, err)
}

func (c *cli) afterSignIn(out checkout.Outcome, resumed bool, err error) error {
	if !resumed {
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, "signed in")
		return nil
	}
	fmt.Fprintln(c.out, "signed in, resuming checkout")
	return c.report(out, err)
}

func (c *cli) resume(ctx context.Context) error {
	out, resumed, err := c.app.Resume(ctx)
	if !resumed && err == nil {
		fmt.Fprintln(c.out, "nothing to resume")
		return nil
	}
	return c.report(out, err)
}

func (c *cli) orders(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ContinueOnError)
	page := fs.Int("page", 1, "page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	list, err := c.app.API.Orders(ctx, *page, 20)
	if err != nil {
		return err
	}
	for _, o := range list.Orders {
		fmt.Fprintf(c.out, "%s  %s  %s\n", o.OrderNumber, o.Status, money(o.TotalCents))
	}
	return nil
}

func money(cents int) string {
	return decimal.New(int64(cents), -2).StringFixed(2) + " €"
}
