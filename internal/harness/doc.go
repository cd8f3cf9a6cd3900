// Package harness runs indexer scenarios through the real engine.
//
// Each scenario executes against a fresh in-memory SQLite store with
// deterministic batch ids, so committed state and batch traces are
// reproducible for golden snapshot comparison.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: gravatar_update
//	description: "An update in the same batch sees the insert"
//	config: ../gravatar.yaml        # or handlers: {Gravatar: gravatar}
//	batch_size: 10
//	setup:                          # committed before events
//	  - contract: Gravatar
//	    kind: NewGravatar
//	    params: {id: "1", owner: "0xA", displayName: "A", imageUrl: "u"}
//	    provenance: {chain_id: 1, block: 1, log_index: 0}
//	events:
//	  - contract: Gravatar
//	    kind: UpdatedGravatar
//	    params: {id: "1", owner: "0xA", displayName: "B", imageUrl: "u"}
//	    provenance: {chain_id: 1, block: 2, log_index: 0}
//	assertions:
//	  - type: entity
//	    entity: Gravatar
//	    id: "1"
//	    expect: {updatesCount: 2, displayName: "B"}
//	  - type: checkpoint
//	    chain: 1
//	    block: 2
//
// # Assertion Types
//
//   - entity: the entity exists and its fields match expect (subset match)
//   - entity_absent: no committed entity with that id
//   - entity_count: number of committed entities of a type
//   - mutation_count: mutations committed by the events phase, optionally
//     for one entity type
//   - mutation_order: refs ("Type/id") first written in this order
//   - batch_count: batches committed by the events phase
//   - checkpoint: the committed checkpoint of a chain
//
// A scenario may set expect_error; the run must then fail with an error
// containing it, and assertions see the state left after the failure.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/gravatar_update.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
