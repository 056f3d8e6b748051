// Package votingengine implements the cooperative's ballot engine inside the
// governance context.
//
// The module owns ballot authoring, eligibility-gated vote casting, the
// time-driven active to completed transition and the one-time completion
// notice to the member roster. Tallies and per-voter records are written as
// one unit by the VoteLedger port; storage, roster, mail delivery and event
// publishing stay behind ports with memory, gorm, badger and HTTP adapters.
package votingengine
