// Package eventloop drives timers scheduled by scripts.
//
// Scripts never run concurrently with each other: the host installs the
// timer functions on a sandbox, runs its scripts, then calls Run on the
// same goroutine to process callbacks. Callbacks hold function handles, so
// they still run after their context was disposed.
package eventloop
