// Package memimg implements a memory image: a live, in-process object graph
// (the system) whose every change is a serializable mutation appended to an
// event log before it counts as committed.
//
// The system is always equal to folding the log's mutations, in order, over
// an empty system. New rebuilds it that way at startup. ExecuteMutation keeps
// it that way afterwards: a mutation is applied under a transaction journal,
// then appended, and any failure in either step rolls the touched fields
// back before the failure is returned.
//
// Domain packages plug in by implementing Mutation and Query against their
// own system type and registering them with a Registry.
package memimg
