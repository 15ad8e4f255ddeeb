// Package config loads the process configuration for a grove
// installation: the local garden's name, API listener settings, data
// directory, and logging options. It also derives the safe connection
// defaults the reconciler uses to repair broken garden records.
package config
