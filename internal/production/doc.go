// Package production runs a strategy through narration, segment generation,
// assembly and upload.
//
// A Job moves through a closed set of statuses (see status.go); every accepted
// transition is appended to the job's event trail and persisted with it.
// Runner.Produce gates each job on a budget reservation before any job row
// is written, registers every actual cost with the ledger as it is incurred,
// and always returns the unused part of the reservation.
package production
