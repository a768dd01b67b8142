// Package generation contains the domain model for PDF document generation:
// the generation Job aggregate and its state machine, the generation options
// value objects, the read-only Character projection consumed by templates,
// and the repository and collaborator interfaces the application layer needs.
//
// Job status graph:
//
//	PENDING -> IN_PROGRESS -> COMPLETE
//	                       -> FAILED -> PENDING (relaunch)
package generation
