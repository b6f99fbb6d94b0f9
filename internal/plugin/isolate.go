package plugin

import "context"

// Isolator executes one call against a plugin export in fresh, disposable
// execution context: no instance pooling or reuse across calls. A crashed,
// hung, or otherwise poisoned invocation must never contaminate the next
// call to the same plugin.
type Isolator interface {
	// Invoke runs export in manifest's plugin with input on stdin-equivalent,
	// returning the plugin's raw output. ctx bounds the call; manifest.Timeout
	// is applied by the caller on top of ctx.
	Invoke(ctx context.Context, m Manifest, export string, input []byte) ([]byte, error)
}
