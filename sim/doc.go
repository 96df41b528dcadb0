// Package sim provides the discrete-event simulation engine for resource-constrained
// process flows.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - event.go: Event types that drive the simulation (RequestFlow, FinishFlow, RoleOn, ...)
//   - simulator.go: The event loop, the two-phase tick and the instance arena
//   - flow.go: The flow state machine (request/finish per node kind)
//
// # Resource arbitration
//
//   - resource.go: Resources, timetables and per-role availability indices
//   - workgroup.go: WorkGroups and the branch-and-bound resource matcher
//   - activity_manager.go: Wait queues and the post-tick rescan
//   - partition.go: Connected-component split of resource types into activity managers
//
// # Collaborators
//
// Random variates and calendars are consumed through the Sampler and Cycle
// interfaces; reference implementations live in sim/workload. Notifications are
// pushed to an InfoSink; sim/trace records them as plain data.
//
// Models are built in code with Model and its New* constructors, or from YAML
// through sim/modelspec. sim/experiment runs seeded replications in parallel.
package sim
