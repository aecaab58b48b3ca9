// Package engine is the execution engine behind an oxbot session.
//
// Respond streams a model response and splits it into typed fragments:
// prose arrives as message fragments, and every fenced code block with a
// language tag becomes a code fragment followed by an executing fragment.
// The stream stops after the first block the engine knows how to run, so a
// response proposes at most one execution.
//
// Execute runs approved code in a child process and streams its output line
// by line. The child runs in its own process group, and cancelling the
// context kills the whole group.
//
// The engine never decides whether code may run. Approval belongs to the
// session package.
package engine
