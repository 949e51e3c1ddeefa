// Package types defines the cascade queue entity, the closed status and
// update-type enums, the collaborator interfaces the engine consumes (law
// store, parser, importer), the queue store contract, and the sentinel errors
// shared by every other package.
//
// Entity methods modify the struct in memory only; callers persist through
// the Queue.
package types
