// Package command defines command books, the requests that ask an aggregate
// to append events, and the decision values business logic returns for them.
package command
