// Package document defines the per-scene state document shared by every
// storyframe peer, the outcome contract its mutations report, and the Store
// seam managers use to reach the single owned copy.
//
// Managers never keep a *Document between calls. They read a snapshot or run a
// mutation through Store, so a wholesale replacement of the owned document is
// visible to every manager on its next call.
package document
