package models

import "time"

// PostcodeStatus is the lifecycle of one postcode's scrape session.
type PostcodeStatus string

const (
	StatusPending PostcodeStatus = "pending"
	StatusRunning PostcodeStatus = "running"
	StatusDone    PostcodeStatus = "done"
	StatusFailed  PostcodeStatus = "failed"
)

// PostcodeRunState is the per-postcode bookkeeping kept by the orchestrator.
// Terminal once Status is done or failed.
type PostcodeRunState struct {
	Postcode string
	Status   PostcodeStatus
	Found    int // raw listings yielded by the session
	New      int // listings that merged as new
	Skipped  int // listings whose detail extraction failed
	Reason   string
}

// RunSummary is carried by the run-finished event and the export metadata.
type RunSummary struct {
	Query           string
	StartedAt       time.Time
	FinishedAt      time.Time
	TotalUnique     int // canonical listings in the final snapshot
	TotalNew        int // listings first seen during this run
	BaselineCount   int // rows seeded from the uploaded export
	FailedPostcodes int
	SkippedListings int
	Partial         bool // run was cancelled before all postcodes finished
}

// ExportBundle is the complete handoff to the export writer: ordered rows,
// per-postcode summary rows and run metadata.
type ExportBundle struct {
	Rows      []*CanonicalListing
	Postcodes []PostcodeSummary
	Summary   RunSummary
}
