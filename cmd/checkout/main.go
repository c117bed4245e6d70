// Command checkout drives one checkout session against a storefront from
// the command line: it edits the cart, selects an address and contact
// details, prints the priced breakdown and optionally places the order.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/cartstore"
	"github.com/xenking/kart-checkout/internal/checkout"
	"github.com/xenking/kart-checkout/internal/domain/pricing"
	"github.com/xenking/kart-checkout/internal/storefront"
)

type config struct {
	BaseURL    string        `required:"true" usage:"Storefront API root, e.g. https://shop.example.com/api" flag:"base-url"`
	Token      string        `usage:"Bearer token for the shopper session" flag:"token"`
	Timeout    time.Duration `default:"10s" usage:"Per-request timeout" flag:"timeout"`
	TablesFile string        `usage:"YAML rate tables file; built-in tables when empty" flag:"tables-file"`
	Debug      bool          `default:"false" usage:"Enable debug logging" flag:"debug"`

	Add     string `usage:"Add a product to the cart, as productID:quantity" flag:"add"`
	Update  string `usage:"Set a cart line quantity, as itemID:quantity" flag:"update"`
	Remove  string `usage:"Remove a cart line by item ID" flag:"remove"`
	Address string `usage:"Address ID to ship to; the default address when empty" flag:"address"`
	Email   string `usage:"Contact email" flag:"email"`
	Phone   string `usage:"Contact phone" flag:"phone"`
	Method  string `default:"standard" usage:"Shipping method: standard or express" flag:"method"`
	Payment string `default:"card" usage:"Payment method label" flag:"payment"`
	Notes   string `usage:"Customer notes sent with the order" flag:"notes"`
	Place   bool   `default:"false" usage:"Place the order when checkout is unblocked" flag:"place"`
}

func loadConfig() (*config, error) {
	var cfg config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "KART_CHECKOUT",
		Files:     []string{"checkout.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return &cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	lg, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, cfg, os.Stdout); err != nil {
		lg.Error("Checkout failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	lc := zap.NewProductionConfig()
	lc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return lc.Build()
}

func run(ctx context.Context, cfg *config, out io.Writer) error {
	tables := pricing.DefaultTables()
	if cfg.TablesFile != "" {
		t, err := pricing.LoadTablesFile(cfg.TablesFile)
		if err != nil {
			return err
		}
		tables = t
	}

	client, err := storefront.New(storefront.Config{
		BaseURL: cfg.BaseURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return err
	}

	store := cartstore.New(client)
	session := checkout.New(pricing.NewEngine(tables), store, client, client)

	if _, err := store.Fetch(ctx); err != nil {
		return errors.Wrap(err, "fetch cart")
	}
	if err := editCart(ctx, store, cfg); err != nil {
		return err
	}

	if err := session.LoadAddresses(ctx); err != nil {
		return err
	}
	if cfg.Address != "" {
		if err := session.SelectAddress(cfg.Address); err != nil {
			return err
		}
	}
	if err := session.SetContact(cfg.Email, cfg.Phone); err != nil {
		return err
	}
	if err := session.SetShippingMethod(pricing.Method(cfg.Method)); err != nil {
		return err
	}
	session.SetPaymentMethod(cfg.Payment)
	session.SetNotes(cfg.Notes)

	printSummary(out, session)

	if !cfg.Place {
		return nil
	}
	conf, err := session.PlaceOrder(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nOrder %s placed (%s)\n", conf.OrderNumber, conf.Status)
	return nil
}

func editCart(ctx context.Context, store *cartstore.Store, cfg *config) error {
	if cfg.Add != "" {
		id, qty, err := parseLine(cfg.Add)
		if err != nil {
			return errors.Wrap(err, "add")
		}
		if _, err := store.AddItem(ctx, id, qty); err != nil {
			return errors.Wrap(err, "add item")
		}
	}
	if cfg.Update != "" {
		id, qty, err := parseLine(cfg.Update)
		if err != nil {
			return errors.Wrap(err, "update")
		}
		if _, err := store.UpdateItem(ctx, id, qty); err != nil {
			return errors.Wrap(err, "update item")
		}
	}
	if cfg.Remove != "" {
		if _, err := store.RemoveItem(ctx, cfg.Remove); err != nil {
			return errors.Wrap(err, "remove item")
		}
	}
	return nil
}

// parseLine splits "id:quantity".
func parseLine(s string) (string, int, error) {
	id, raw, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return "", 0, errors.Errorf("expected id:quantity, got %q", s)
	}
	qty, err := strconv.Atoi(raw)
	if err != nil {
		return "", 0, errors.Wrapf(err, "quantity %q", raw)
	}
	return id, qty, nil
}

func printSummary(out io.Writer, session *checkout.Orchestrator) {
	c := session.Cart()
	fmt.Fprintf(out, "Cart: %d item(s)\n", c.TotalItems)
	for _, it := range c.Items {
		name := it.ProductID
		if it.Product != nil && it.Product.Name != "" {
			name = it.Product.Name
		}
		fmt.Fprintf(out, "  %-10s %-30s %3d x %8s = %9s\n",
			it.ID, name, it.Quantity, it.PriceAtAdd.StringFixed(2), it.LineTotal().StringFixed(2))
	}

	if addr, ok := session.SelectedAddress(); ok {
		fmt.Fprintf(out, "Ship to: %s, %s, %s %s %s\n", addr.FullName, addr.Street, addr.City, addr.State, addr.ZipCode)
	}

	b := session.Pricing().Rounded()
	fmt.Fprintf(out, "Subtotal: %9s\n", b.Subtotal.StringFixed(2))
	fmt.Fprintf(out, "Shipping: %9s  (%s, %s)\n", b.Shipping.StringFixed(2), b.Zone, b.Method)
	fmt.Fprintf(out, "Tax:      %9s\n", b.Tax.StringFixed(2))
	fmt.Fprintf(out, "Total:    %9s\n", session.Total().StringFixed(2))

	for _, issue := range session.Issues() {
		fmt.Fprintf(out, "! %s\n", issue.Message)
	}
	for _, bl := range session.Blockers() {
		fmt.Fprintf(out, "- cannot place order: %s\n", bl)
	}
}
