// Package models contains GORM persistence models that map to database tables.
// They stay separate from domain entities to keep the domain layer free of
// ORM concerns.
//
// Structure:
//   - base.go: the tenant aggregate header shared by every table
//   - settlement.go: open items, settlements, their lines and method lines
//
// Repositories map between these models and the settlement domain.
package models
