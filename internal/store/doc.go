// Package store provides the shared persistent table store for timekeep.
//
// The store holds a small number of named tables, each with exactly one
// JSON value. Writers replace the whole value; there is no partial patch
// primitive. Every committed put bumps the table's version and notifies
// local subscribers in commit order.
//
// Multiple processes (the CLI, the daemon) may open the same store. A
// journal marker file is touched on every put, and a watcher built on
// fsnotify re-reads table versions when the journal changes, so
// subscriptions registered in one process also fire for puts that
// originated in another.
//
// Architecture:
//   - Database file: <dir>/timekeep.db (embedded SQLite, WAL mode)
//   - Journal file:  <dir>/journal
//   - Schema: single "tables" relation (name, value, version, updated_at)
//
// Usage:
//
//	st, err := store.Open(".timekeep", nil)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	unsub := st.Subscribe(store.TableOptions, func(value json.RawMessage) {
//	    // re-render
//	})
//	defer unsub()
//
//	if err := st.Put(ctx, store.TableOptions, opts); err != nil {
//	    return err
//	}
package store
