// Package fulfillment models order fulfillment: payment, inventory and
// warehouse aggregates each record one prerequisite for an order, and the
// fulfillment process manager issues a single Ship command to the shipping
// aggregate once all three have happened, in whatever order they arrive.
//
// Every stream of an order is addressed by a root derived from the order id,
// and the order id doubles as the correlation id.
package fulfillment
