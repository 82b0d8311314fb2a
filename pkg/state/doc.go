// Package state persists the orchestrator's durable data: which environment
// is active and what each feature last contributed to the symbol set.
//
//   - Store[T] loads and saves a single snapshot for a single Ref.
//   - MemoryStore and FileStore are the bundled Store implementations.
//   - Persister[T] adapts a Store to the MarkDirty/Persist pair the
//     orchestrator calls after a successful write-back.
//   - Mutate performs an ETag-checked read-modify-write.
//
// Data flow:
//
//	Orchestrator.State() -> Persister.Persist -> Store.Save
//	Store.Load -> Persister.Load -> Orchestrator.Restore
package state
