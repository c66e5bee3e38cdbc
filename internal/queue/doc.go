// Package queue provides admission control and asynchronous execution of
// ask/edit/push/MR/cleanup jobs. Jobs against the same workspace run
// strictly one at a time in submission order; jobs against different
// workspaces run concurrently on a fixed worker pool.
package queue
