// Package gitflow implements the branch workflow around an edit
// execution: preparing an isolated branch before the run, and turning
// the run's filesystem changes into a commit, a push, and optionally a
// merge request afterwards.
package gitflow
