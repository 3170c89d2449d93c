// Package store defines the graph store capability consumed by secmesh tools:
// open a scoped Session, run a query, get ordered Records back.
//
// Implementations live in sub-packages (store/neo4j for the Neo4j driver,
// store/cache for a Redis read-through decorator). MockStore is an
// in-memory implementation for tests and examples.
//
// A Store is borrowed by runs, never owned: nothing in secmesh closes it
// except the process that created it.
package store
