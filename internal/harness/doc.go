// Package harness runs repair conformance scenarios.
//
// A scenario describes a collection of records field by field, optionally a
// script of confirmation answers, and what each record must look like after a
// run. The harness encodes the records, drives them through the real
// driver/processor/rewriter stack against an in-memory collection, and checks
// the expectations.
//
// # Scenario Format
//
//	name: latin1_names
//	description: "Latin-1 bytes stored as text are reinterpreted"
//	collection: people
//	answers: [y, n]          # optional; omitted means auto-approve
//	dry_run: false
//	records:
//	  - id: 1
//	    fields:
//	      - {key: name, hex: "c1ee"}
//	      - {key: city, text: "Zürich"}
//	      - key: address
//	        doc:
//	          - {key: line, hex: "636166e9"}
//	      - key: tags
//	        array:
//	          - {hex: "e9"}
//	expect:
//	  - record: 0
//	    changed: true
//	    replaced: true
//	    reviewed: [name, address.line, tags.0]
//	    fields:
//	      name: "Áî"
//
// A record without id has no _id element. truncate cuts bytes off the end of
// the encoded record to simulate structural damage.
//
// # Deterministic Testing
//
// Records are processed one collection, one stream, strictly in order, so the
// trace is identical across runs and can be compared against golden files.
package harness
