package features

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/fjod/go_loyalty/internal/cart"
	"github.com/fjod/go_loyalty/internal/checkout"
	"github.com/fjod/go_loyalty/internal/coins"
	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/fjod/go_loyalty/internal/ledger"
	"github.com/fjod/go_loyalty/internal/orders"
	"github.com/fjod/go_loyalty/internal/pricing"
	"github.com/fjod/go_loyalty/internal/store"
	"github.com/fjod/go_loyalty/pkg/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errorKinds = map[string]error{
	"invalid_amount":          domain.ErrInvalidAmount,
	"insufficient_balance":    domain.ErrInsufficientBalance,
	"invalid_transition":      domain.ErrInvalidTransition,
	"selection_locked":        domain.ErrSelectionLocked,
	"selection_not_confirmed": domain.ErrSelectionNotConfirmed,
	"expired_instrument":      domain.ErrExpiredInstrument,
	"not_found":               domain.ErrNotFound,
}

type catalogStub map[string]*domain.Product

func (c catalogStub) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

type silentNotifier struct{}

func (silentNotifier) Send(context.Context, string, string) error { return nil }

type loyaltyWorld struct {
	clock    *clock.Fixed
	store    *store.MemoryStore
	catalog  catalogStub
	cards    *ledger.Service
	coins    *coins.Service
	cart     *cart.Service
	orders   *orders.Manager
	checkout *checkout.Service

	sessions  map[string]string
	giftCards map[string]string
	stampCard string
	cardSeq   int
	cartUser  string
	order     *domain.Order
	redeemed  decimal.Decimal
	err       error
}

func (w *loyaltyWorld) reset() {
	if w.store != nil {
		w.store.Close()
	}
	w.clock = clock.NewFixed(time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC))
	w.store = store.NewMemoryStore(time.Hour, w.clock)
	w.catalog = catalogStub{}

	log := zap.NewNop()
	engine := pricing.NewEngine(pricing.DefaultCoinRate)
	messages := orders.NewMessages("212660094154", "212")
	w.cards = ledger.NewService(w.store, w.clock, log)
	w.coins = coins.NewService(w.store, w.store, coins.DefaultPolicy(), w.clock, log)
	w.cart = cart.NewService(w.store, w.catalog, w.cards, w.coins, engine, w.clock, log)
	w.orders = orders.NewManager(w.store, engine, silentNotifier{}, messages, w.clock, log)
	w.checkout = checkout.NewService(w.cart, w.coins, w.cards, w.orders, engine, silentNotifier{}, messages, log)
	w.orders.Subscribe(w.checkout)

	w.sessions = make(map[string]string)
	w.giftCards = make(map[string]string)
	w.stampCard = ""
	w.cardSeq = 0
	w.cartUser = ""
	w.order = nil
	w.redeemed = decimal.Zero
	w.err = nil
}

func (w *loyaltyWorld) nextCardNumber(prefix byte) string {
	w.cardSeq++
	return fmt.Sprintf("%c%015d", prefix, w.cardSeq)
}

func (w *loyaltyWorld) theCatalogHasProducts(table *godog.Table) error {
	for _, row := range table.Rows[1:] {
		price, err := decimal.NewFromString(row.Cells[2].Value)
		if err != nil {
			return err
		}
		coinPrice, err := strconv.ParseInt(row.Cells[3].Value, 10, 64)
		if err != nil {
			return err
		}
		id := row.Cells[0].Value
		w.catalog[id] = &domain.Product{ID: id, Name: row.Cells[1].Value, Price: price, CoinPrice: coinPrice}
	}
	return nil
}

func (w *loyaltyWorld) hasACartWith(user string, table *godog.Table) error {
	ctx := context.Background()
	session, err := w.cart.Start(ctx, user)
	if err != nil {
		return err
	}
	w.sessions[user] = session.ID
	w.cartUser = user
	for _, row := range table.Rows[1:] {
		qty, err := strconv.Atoi(row.Cells[1].Value)
		if err != nil {
			return err
		}
		req := cart.AddItemRequest{ProductID: row.Cells[0].Value, Quantity: qty}
		if _, err := w.cart.AddItem(ctx, session.ID, user, req); err != nil {
			return err
		}
	}
	return nil
}

func (w *loyaltyWorld) ownsAGiftCardWorth(user, value string) error {
	ctx := context.Background()
	number := w.nextCardNumber('5')
	issued, err := w.cards.Issue(ctx, &domain.GiftCard{
		InstrumentBase: domain.InstrumentBase{CardNumber: number},
		MonetaryValue:  domain.MustMoney(value),
		ExpiryDate:     w.clock.Now().AddDate(0, 3, 0),
	})
	if err != nil {
		return err
	}
	if _, err := w.cards.Claim(ctx, user, number); err != nil {
		return err
	}
	w.giftCards[user] = issued.Base().ID
	return nil
}

func (w *loyaltyWorld) ownsAStampCard(user string, current, capacity int) error {
	ctx := context.Background()
	number := w.nextCardNumber('4')
	issued, err := w.cards.Issue(ctx, &domain.StampCard{
		InstrumentBase: domain.InstrumentBase{CardNumber: number},
		CurrentStamps:  current,
		StampCapacity:  capacity,
		RewardStages:   []domain.RewardStage{{RequiredStamps: capacity, Description: "free coffee"}},
	})
	if err != nil {
		return err
	}
	if _, err := w.cards.Claim(ctx, user, number); err != nil {
		return err
	}
	w.stampCard = issued.Base().ID
	return nil
}

func (w *loyaltyWorld) hasCoins(user string, amount int64) error {
	if amount == 0 {
		return nil
	}
	_, err := w.coins.Grant(context.Background(), user, amount, "welcome bonus")
	return err
}

func (w *loyaltyWorld) selectsTheGiftCardAndCoins(user string, amount int64) error {
	_, w.err = w.cart.SelectLoyalty(context.Background(), w.sessions[user], user, w.giftCards[user], amount)
	return nil
}

func (w *loyaltyWorld) selectsCoins(user string, amount int64) error {
	_, w.err = w.cart.SelectLoyalty(context.Background(), w.sessions[user], user, "", amount)
	return nil
}

func (w *loyaltyWorld) confirmsTheLoyaltySelection(user string) error {
	_, w.err = w.cart.ConfirmLoyalty(context.Background(), w.sessions[user], user)
	return nil
}

func (w *loyaltyWorld) addsToTheCart(user string, qty int, productID string) error {
	req := cart.AddItemRequest{ProductID: productID, Quantity: qty}
	_, w.err = w.cart.AddItem(context.Background(), w.sessions[user], user, req)
	return nil
}

func (w *loyaltyWorld) quote() (pricing.Breakdown, *domain.Session, error) {
	session, err := w.cart.Get(context.Background(), w.sessions[w.cartUser], w.cartUser)
	if err != nil {
		return pricing.Breakdown{}, nil, err
	}
	return w.cart.Quote(session), session, nil
}

func checkMoney(name, want string, got decimal.Decimal) error {
	if got.StringFixed(domain.MoneyPlaces) != want {
		return fmt.Errorf("expected %s %s, got %s", name, want, got.StringFixed(domain.MoneyPlaces))
	}
	return nil
}

func (w *loyaltyWorld) theSubtotalIs(want string) error {
	b, _, err := w.quote()
	if err != nil {
		return err
	}
	return checkMoney("subtotal", want, b.Subtotal)
}

func (w *loyaltyWorld) theCoinSubtotalIs(want int64) error {
	b, _, err := w.quote()
	if err != nil {
		return err
	}
	if b.CoinSubtotal != want {
		return fmt.Errorf("expected coin subtotal %d, got %d", want, b.CoinSubtotal)
	}
	return nil
}

func (w *loyaltyWorld) theDiscountIs(want string) error {
	b, _, err := w.quote()
	if err != nil {
		return err
	}
	return checkMoney("discount", want, b.Discount)
}

func (w *loyaltyWorld) theTotalIs(want string) error {
	b, _, err := w.quote()
	if err != nil {
		return err
	}
	return checkMoney("total", want, b.Total)
}

func (w *loyaltyWorld) theSelectionIsConfirmed() error {
	if w.err != nil {
		return fmt.Errorf("unexpected error: %w", w.err)
	}
	_, session, err := w.quote()
	if err != nil {
		return err
	}
	if !session.Loyalty.Confirmed {
		return errors.New("expected the loyalty selection to be confirmed")
	}
	return nil
}

func (w *loyaltyWorld) theRequestFailsWith(kind string) error {
	want, ok := errorKinds[kind]
	if !ok {
		return fmt.Errorf("unknown error kind %q", kind)
	}
	if w.err == nil {
		return fmt.Errorf("expected %s error, got success", kind)
	}
	if !errors.Is(w.err, want) {
		return fmt.Errorf("expected %s error, got %v", kind, w.err)
	}
	w.err = nil
	return nil
}

func (w *loyaltyWorld) transfersCoinsTo(from string, amount int64, to string) error {
	_, w.err = w.coins.Transfer(context.Background(), from, to, amount)
	return nil
}

func (w *loyaltyWorld) hasABalanceOf(user string, want int64) error {
	got, err := w.coins.Balance(context.Background(), user)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("expected %s to have %d coins, got %d", user, want, got)
	}
	return nil
}

func (w *loyaltyWorld) redeemsCoins(user string, amount int64) error {
	w.redeemed, w.err = w.coins.RedeemForDiscount(context.Background(), user, amount)
	return nil
}

func (w *loyaltyWorld) theRedeemedDiscountIs(want string) error {
	if w.err != nil {
		return fmt.Errorf("unexpected error: %w", w.err)
	}
	return checkMoney("redeemed discount", want, w.redeemed)
}

func (w *loyaltyWorld) activatesAStamp(user, code string) error {
	_, w.err = w.coins.ActivateStamp(context.Background(), user, w.stampCard, code)
	return nil
}

func (w *loyaltyWorld) theStampCardHas(want int) error {
	if w.err != nil {
		return fmt.Errorf("unexpected error: %w", w.err)
	}
	inst, err := w.store.Get(context.Background(), w.stampCard)
	if err != nil {
		return err
	}
	card := inst.(*domain.StampCard)
	if card.CurrentStamps != want {
		return fmt.Errorf("expected %d stamps, got %d", want, card.CurrentStamps)
	}
	if card.CurrentStamps > card.StampCapacity {
		return fmt.Errorf("stamps %d exceed capacity %d", card.CurrentStamps, card.StampCapacity)
	}
	return nil
}

func (w *loyaltyWorld) placeOrder(user string) (*domain.Order, error) {
	return w.checkout.PlaceOrder(context.Background(), checkout.Request{
		SessionID:     w.sessions[user],
		UserID:        user,
		Delivery:      domain.DeliverySelection{Window: "10:00-12:00"},
		Customer:      domain.CustomerInfo{Name: "Alice", Phone: "0612345678", Address: "1 Rue de Fes"},
		PaymentMethod: domain.PaymentMethodCash,
	})
}

func (w *loyaltyWorld) placedAnOrder(user string) error {
	if w.err != nil {
		return fmt.Errorf("unexpected error before checkout: %w", w.err)
	}
	order, err := w.placeOrder(user)
	if err != nil {
		return err
	}
	w.order = order
	return nil
}

func (w *loyaltyWorld) triesToPlaceAnOrder(user string) error {
	w.order, w.err = w.placeOrder(user)
	return nil
}

func (w *loyaltyWorld) theOrderStatusIs(want string) error {
	if w.order == nil {
		return errors.New("no order was placed")
	}
	order, err := w.orders.GetByID(context.Background(), w.order.ID)
	if err != nil {
		return err
	}
	if order.Status.String() != want {
		return fmt.Errorf("expected status %s, got %s", want, order.Status)
	}
	return nil
}

func (w *loyaltyWorld) theOrderTotalIs(want string) error {
	if w.order == nil {
		return errors.New("no order was placed")
	}
	return checkMoney("order total", want, w.order.Total)
}

func (w *loyaltyWorld) theStoreMovesTheOrderTo(status string) error {
	if w.order == nil {
		return errors.New("no order was placed")
	}
	_, w.err = w.orders.Transition(context.Background(), w.order.ID, domain.OrderStatus(status))
	return nil
}

func (w *loyaltyWorld) theStoreMovesTheOrderThrough(table *godog.Table) error {
	for _, row := range table.Rows[1:] {
		status := row.Cells[0].Value
		if _, err := w.orders.Transition(context.Background(), w.order.ID, domain.OrderStatus(status)); err != nil {
			return fmt.Errorf("move to %s: %w", status, err)
		}
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	w := &loyaltyWorld{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		w.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if err == nil && w.err != nil {
			return ctx, fmt.Errorf("unchecked error: %w", w.err)
		}
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^the catalog has products:$`, w.theCatalogHasProducts)
	ctx.Step(`^"([^"]*)" has a cart with:$`, w.hasACartWith)
	ctx.Step(`^"([^"]*)" owns a gift card worth "([^"]*)"$`, w.ownsAGiftCardWorth)
	ctx.Step(`^"([^"]*)" owns a stamp card with (\d+) of (\d+) stamps$`, w.ownsAStampCard)
	ctx.Step(`^"([^"]*)" has (\d+) coins$`, w.hasCoins)
	ctx.Step(`^"([^"]*)" placed an order$`, w.placedAnOrder)

	// When steps
	ctx.Step(`^"([^"]*)" selects the gift card and (\d+) coins$`, w.selectsTheGiftCardAndCoins)
	ctx.Step(`^"([^"]*)" selects (\d+) coins$`, w.selectsCoins)
	ctx.Step(`^"([^"]*)" confirms the loyalty selection$`, w.confirmsTheLoyaltySelection)
	ctx.Step(`^"([^"]*)" adds (\d+) "([^"]*)" to the cart$`, w.addsToTheCart)
	ctx.Step(`^"([^"]*)" transfers (\d+) coins to "([^"]*)"$`, w.transfersCoinsTo)
	ctx.Step(`^"([^"]*)" redeems (\d+) coins$`, w.redeemsCoins)
	ctx.Step(`^"([^"]*)" activates a stamp with code "([^"]*)"$`, w.activatesAStamp)
	ctx.Step(`^"([^"]*)" tries to place an order$`, w.triesToPlaceAnOrder)
	ctx.Step(`^the store moves the order to "([^"]*)"$`, w.theStoreMovesTheOrderTo)
	ctx.Step(`^the store moves the order through:$`, w.theStoreMovesTheOrderThrough)

	// Then steps
	ctx.Step(`^the subtotal is "([^"]*)"$`, w.theSubtotalIs)
	ctx.Step(`^the coin subtotal is (\d+)$`, w.theCoinSubtotalIs)
	ctx.Step(`^the discount is "([^"]*)"$`, w.theDiscountIs)
	ctx.Step(`^the total is "([^"]*)"$`, w.theTotalIs)
	ctx.Step(`^the selection is confirmed$`, w.theSelectionIsConfirmed)
	ctx.Step(`^the request fails with "([^"]*)"$`, w.theRequestFailsWith)
	ctx.Step(`^"([^"]*)" has a balance of (\d+) coins$`, w.hasABalanceOf)
	ctx.Step(`^the redeemed discount is "([^"]*)"$`, w.theRedeemedDiscountIs)
	ctx.Step(`^the stamp card has (\d+) stamps$`, w.theStampCardHas)
	ctx.Step(`^the order status is "([^"]*)"$`, w.theOrderStatusIs)
	ctx.Step(`^the order total is "([^"]*)"$`, w.theOrderTotalIs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
