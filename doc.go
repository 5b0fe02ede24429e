// Package buildscope provides live semantic analysis of build scripts:
// completion proposals, hover documentation, token classification and a
// structural outline, all backed by a type deduction over the script and the
// documentation of the tasks it invokes.
//
// # Documents
//
// An [Environment] holds the open build scripts. Each [Document] owns the
// last published [Snapshot] of its script and at most one background worker
// computing the next one:
//
//	env, err := buildscope.New(buildscope.WithCatalog("catalog.db"))
//	if err != nil { ... }
//	defer env.Close()
//
//	doc := env.Open("main.build")
//	snap, err := doc.Snapshot(ctx)
//	proposals := snap.Proposals(offset)
//
// [Document.Update] applies editor edits and reparses. An edit that leaves
// the text unchanged keeps the published snapshot. [Document.Invalidate]
// marks the snapshot stale without discarding it, and the next
// [Document.Snapshot] reuses it when the source still has the same content.
//
// Scripts including other scripts resolve them through the environment. A
// document that is open but not yet analyzed has its analysis started and
// contributes no information until it is ready.
//
// # Catalog
//
// Task documentation comes from the builtin tasks, an optional SQLite
// [Catalog] and any providers added with [WithRegistry]. The catalog is
// filled from YAML catalog files, Risor catalog scripts, and Java task
// sources whose annotations are extracted with tree-sitter:
//
//   - scripts/catalog/{name}.risor: catalog scripts
//   - scripts/extract/java.risor: Java annotation extraction
//
// [Catalog.ScanDirectory] skips sources whose content hash is unchanged.
//
// # Configuration
//
// A .buildscope.yaml file in the workspace directory is read by
// [LoadConfig] and turned into options with [Config.Options].
//
// The buildscope command in cmd/buildscope exposes the same queries
// (outline, hover, complete, types, tokens) and maintains the catalog.
package buildscope
