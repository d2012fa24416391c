// Package harness runs end-to-end scenarios against a real store.
//
// A scenario is a YAML file describing a sequence of roster snapshots,
// annotation writes, resolution passes and verifications, followed by
// assertions over the final state:
//
//	name: reorder_keeps_attribution
//	description: "An annotation keeps its author after the roster reorders"
//	steps:
//	  - reconcile:
//	      - {id: Z1, name: Alice}
//	      - {id: Z2, name: Bob}
//	  - annotate: {id: ann-1, sender: pm, content: "great handover", ordinal: 2}
//	  - reconcile:
//	      - {id: Z2, name: Bob}
//	      - {id: Z1, name: Alice}
//	  - resolve: {}
//	assertions:
//	  - type: resolution
//	    annotation: ann-1
//	    stable_id: Z2
//	    confidence: inferred
//
// # Assertion Types
//
//   - mapping: the stable ID currently at an ordinal ("" for none)
//   - resolution: an annotation's resolved stable ID, confidence and tier
//   - changeset: the added, removed and moved stable IDs of one step
//   - unresolved: the exact set of unresolved annotations
//   - violations: the violation kinds a final verification reports
//   - error: the error code a step failed with
//
// # Deterministic Execution
//
// Every scenario runs in a fresh database with a step clock starting at
// a fixed instant and advancing one minute per reading, sequential run
// and pass IDs ("run-1", "pass-1"), and rosters numbered in the order
// listed unless sort_by says otherwise. The resulting trace is stable
// and is compared byte for byte against golden files.
package harness
