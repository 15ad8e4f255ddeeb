/*
Package garden implements the federation control plane for garden
records: the service that creates, reads, updates and removes gardens,
reconciles their connection configuration on every read and write,
applies federation events from direct children, and coordinates the
sync fan-out protocol down the garden tree.

The service is the single reconciliation-capable path for garden state;
reads return sanitized views without writing repairs back, while writes
always persist schema-valid connection parameters.
*/
package garden
