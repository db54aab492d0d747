// Package models contains GORM persistence models that map to database tables.
// Domain types carry no ORM tags; repositories convert between the two with
// ToDomain and FromDomain.
//
// Tables:
//   - products: the bakery catalog (catalog.go)
//   - orders: finalized, paid plans (order.go)
package models
