// Package settle is a declarative settings-panel framework for terminal
// applications. A host describes its settings as a schema of pages,
// sections, and typed settings, mounts a session over it, and receives
// callbacks for writes, validation, and actions. Settle tracks resolved
// values, validation errors, per-key asynchronous save status, action
// in-flight state, and confirm-before-apply interception, and exposes it
// all as immutable snapshots with a reactive binding layer.
//
// The subpackages can be used independently:
//
//	schema  - schema model, key index, visibility, validation engine
//	store   - value store, save/action tracking, confirmations
//	binding - per-key change dispatch over store snapshots
//	panel   - interactive tcell settings panel
//	loader  - JSON/TOML/YAML schema and values files
//	values  - value merging and the dotted-path JSON document
//	watch   - debounced file watching for live reload
//	script  - Lua validators and action handlers
//
// Most hosts only need Mount:
//
//	sess, err := settle.Mount(sch, settle.Config{
//		Values: saved,
//		OnChange: func(key string, value any) store.Pending {
//			return store.Async(func() error { return persist(key, value) })
//		},
//	})
package settle
