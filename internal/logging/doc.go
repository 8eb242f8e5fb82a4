// Package logging sets up structured slog logging for docsift.
// With --debug, JSON records go to a size-rotated file under ~/.docsift/logs/
// as well as stderr; `docsift logs` reads them back.
package logging
