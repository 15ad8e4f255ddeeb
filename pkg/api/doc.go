// Package api exposes the garden federation over HTTP: CRUD for garden
// records, sync triggers, and the ingress endpoints remote gardens use
// to deliver routed operations and federation events.
package api
