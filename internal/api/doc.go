// Package api exposes the monitor service over HTTP as a JSON API, plus a
// Server-Sent Events stream of status transitions.
package api
