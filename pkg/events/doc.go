// Package events provides the in-process event bus: a broker that fans
// federation events out to subscribers, and the publish-on-success
// combinator used by garden operations that emit an event carrying
// their result.
package events
