// Package store is the shared, path-addressed document store every process
// on the line reads and writes.
//
// The data model is a JSON tree addressed by slash-separated paths
// ("orders/{id}/status", "live_order/items/0/quantity"). It is persisted in
// SQLite, one row per leaf:
//   - nodes: path → canonical JSON scalar, plus the revision that wrote it
//   - revision: a single monotonically increasing commit counter
//
// # Operations
//
//   - Read: one subtree, rebuilt from its leaves
//   - ReadAll: several subtrees from one consistent snapshot
//   - Update: an atomic multi-path batch, optionally guarded by preconditions
//   - Append: a child under a generated, time-ordered key
//   - Subscribe: change notifications for a subtree
//
// # Atomicity
//
// Every Update runs in one IMMEDIATE transaction. Preconditions are checked
// inside that transaction, so a guarded batch either applies whole, against
// exactly the state it expected, or not at all. Two processes racing on the
// same precondition cannot both win.
//
// Maps whose keys are exactly "0".."n-1" read back as arrays. Null values and
// empty containers do not exist: writing one deletes the path.
//
// # Database Configuration
//
//   - WAL mode: concurrent readers in other processes
//   - synchronous=NORMAL
//   - busy_timeout=5000
package store
