// Package migration provides the migration chain and the transactional apply
// engine used by migren.
//
// Migrations form a single linked chain of reversible changes. Every node has an
// up script and a down script stored next to the manifest file (.migren.json)
// and named {id}_{name}_{up|down}.sql. Node 0 is a synthetic "empty database"
// node that is never executed.
//
// Moving the database from one node to another resolves a path along the
// chain (up scripts when moving forward, down scripts when rolling back),
// executes every script inside a single transaction and records the new
// position in the migren_data table in the same transaction:
//
//	graph, err := migration.LoadGraph(dir, version)
//	if err != nil {
//		return err
//	}
//	applier := migration.NewApplierWithLogger(store, version, logger)
//	result, err := applier.Apply(ctx, graph, graph.Counter)
//
// Scripts may contain a "-- migren:split" line comment to cut them into
// separately executed statement groups.
package migration
