// Package subscription provides the notification plumbing shared by the
// device controllers: a callback Registry with cancellable Handles, and a
// latest-value Slot for blocking waiters.
package subscription
