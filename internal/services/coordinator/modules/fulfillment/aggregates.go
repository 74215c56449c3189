package fulfillment

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
	"github.com/louisbranch/evented/internal/platform/id"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/aggregate"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/command"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
	"github.com/louisbranch/evented/internal/services/coordinator/domain/rebuild"
)

// Stream domains.
const (
	DomainPayment   = "payment"
	DomainInventory = "inventory"
	DomainWarehouse = "warehouse"
	DomainShipping  = "shipping"
)

const (
	CommandSubmitPayment = "payment.submit"
	CommandReserveStock  = "inventory.reserve_stock"
	CommandPackItems     = "warehouse.pack_items"
	CommandShip          = "shipping.ship"

	EventPaymentSubmitted = "payment.submitted"
	EventStockReserved    = "inventory.stock_reserved"
	EventItemsPacked      = "warehouse.items_packed"
	EventShipped          = "shipping.shipped"
)

// Rejection codes.
const (
	CodeOrderRequired   apperrors.Code = "ORDER_ID_REQUIRED"
	CodeAmountInvalid   apperrors.Code = "PAYMENT_AMOUNT_INVALID"
	CodeAlreadyPaid     apperrors.Code = "PAYMENT_ALREADY_SUBMITTED"
	CodeQuantityInvalid apperrors.Code = "STOCK_QUANTITY_INVALID"
	CodeAlreadyReserved apperrors.Code = "STOCK_ALREADY_RESERVED"
	CodeAlreadyPacked   apperrors.Code = "ITEMS_ALREADY_PACKED"
	CodeAlreadyShipped  apperrors.Code = "ORDER_ALREADY_SHIPPED"
)

// OrderCover addresses the stream of domain for orderID.
func OrderCover(domain, orderID string) event.Cover {
	orderID = strings.TrimSpace(orderID)
	return event.Cover{Domain: domain, Root: id.RootFromKey(domain, orderID), CorrelationID: orderID}
}

// SubmitPayment charges an order.
type SubmitPayment struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

// PaymentSubmitted is emitted by SubmitPayment.
type PaymentSubmitted struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

// ReserveStock holds inventory for an order.
type ReserveStock struct {
	OrderID  string `json:"order_id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// StockReserved is emitted by ReserveStock.
type StockReserved struct {
	OrderID  string `json:"order_id"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// PackItems boxes an order.
type PackItems struct {
	OrderID string `json:"order_id"`
}

// ItemsPacked is emitted by PackItems.
type ItemsPacked struct {
	OrderID string `json:"order_id"`
}

// Ship hands an order to the carrier.
type Ship struct {
	OrderID string `json:"order_id"`
}

// Shipped is emitted by Ship.
type Shipped struct {
	OrderID string `json:"order_id"`
}

// Step is the state shared by the single-step order aggregates.
type Step struct {
	OrderID string `json:"order_id"`
	Done    bool   `json:"done"`
}

// step builds a domain whose only command may succeed once per order.
func step[C, E any](domain, commandType, eventType string, done apperrors.Code, orderOf func(E) string, decide func(C) (E, *command.Rejection)) *aggregate.Definition[Step] {
	folds := rebuild.NewFoldRouter[Step]()
	rebuild.HandleEvent(folds, eventType, func(s Step, e E) Step {
		s.OrderID = orderOf(e)
		s.Done = true
		return s
	})
	def := aggregate.NewDomain(domain, rebuild.Funcs[Step]{
		Empty: func() Step { return Step{} },
		Apply: folds.Apply,
	})
	aggregate.HandleCommand(def, commandType, func(s Step, c C) command.Decision {
		if s.Done {
			return command.Precondition(done, fmt.Sprintf("order %s: %s already recorded", s.OrderID, eventType))
		}
		e, rejection := decide(c)
		if rejection != nil {
			return command.Rejected(*rejection)
		}
		return command.Accept(event.MustPayload(eventType, e))
	})
	return def
}

func requireOrder(orderID string) *command.Rejection {
	if strings.TrimSpace(orderID) == "" {
		r := command.Reject(apperrors.KindInvalidArgument, CodeOrderRequired, "order id is required")
		return &r
	}
	return nil
}

// Payment builds the payment domain.
func Payment() *aggregate.Definition[Step] {
	return step(DomainPayment, CommandSubmitPayment, EventPaymentSubmitted, CodeAlreadyPaid,
		func(e PaymentSubmitted) string { return e.OrderID },
		func(c SubmitPayment) (PaymentSubmitted, *command.Rejection) {
			if r := requireOrder(c.OrderID); r != nil {
				return PaymentSubmitted{}, r
			}
			if c.Amount <= 0 {
				r := command.Reject(apperrors.KindInvalidArgument, CodeAmountInvalid, "amount must be positive")
				return PaymentSubmitted{}, &r
			}
			return PaymentSubmitted(c), nil
		})
}

// Inventory builds the inventory domain.
func Inventory() *aggregate.Definition[Step] {
	return step(DomainInventory, CommandReserveStock, EventStockReserved, CodeAlreadyReserved,
		func(e StockReserved) string { return e.OrderID },
		func(c ReserveStock) (StockReserved, *command.Rejection) {
			if r := requireOrder(c.OrderID); r != nil {
				return StockReserved{}, r
			}
			if c.Quantity <= 0 || strings.TrimSpace(c.SKU) == "" {
				r := command.Reject(apperrors.KindInvalidArgument, CodeQuantityInvalid, "sku and a positive quantity are required")
				return StockReserved{}, &r
			}
			return StockReserved(c), nil
		})
}

// Warehouse builds the warehouse domain.
func Warehouse() *aggregate.Definition[Step] {
	return step(DomainWarehouse, CommandPackItems, EventItemsPacked, CodeAlreadyPacked,
		func(e ItemsPacked) string { return e.OrderID },
		func(c PackItems) (ItemsPacked, *command.Rejection) {
			if r := requireOrder(c.OrderID); r != nil {
				return ItemsPacked{}, r
			}
			return ItemsPacked(c), nil
		})
}

// Shipping builds the shipping domain. A second Ship for the same order is
// rejected.
func Shipping() *aggregate.Definition[Step] {
	return step(DomainShipping, CommandShip, EventShipped, CodeAlreadyShipped,
		func(e Shipped) string { return e.OrderID },
		func(c Ship) (Shipped, *command.Rejection) {
			if r := requireOrder(c.OrderID); r != nil {
				return Shipped{}, r
			}
			return Shipped(c), nil
		})
}
