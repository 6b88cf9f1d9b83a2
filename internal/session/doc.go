// Package session holds per-visitor conversation state in memory.
// A Store is the ordered list of turns for one conversation, and a Manager
// hands out one Session per session ID, enforcing a single in-flight
// submission per session and dropping sessions that sit idle.
package session
