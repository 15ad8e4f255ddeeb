/*
Package router delivers operations toward their target garden, hop by
hop. Operations addressed to the local garden are dispatched to a
registered handler; operations addressed elsewhere are delivered over
the transport selected by the target garden's reconciled connection
type: an HTTP POST to the child's operations endpoint, or a STOMP send
to the child's configured destination.

The router performs no retries; retry and backoff belong to the caller
or the message broker.
*/
package router
