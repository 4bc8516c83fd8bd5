// Package group provides persistence for groups, memberships, activity
// sessions and reactions.
//
// The auth and realtime packages consume it read-only: the permission
// resolver resolves roles through it and the hub snapshots a user's group
// scope at connection time. All writes flow through the HTTP handlers.
package group
