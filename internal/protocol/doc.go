// Package protocol implements the request/response exchange with the daemon's
// socket.
//
// Each batch of operations travels over its own connection: the client writes
// one script line, half-closes the write side and reads reply lines until the
// daemon closes the connection. Replies are correlated in submission order.
//
// The Client handles:
//   - Assigning a correlation id to every operation
//   - Encoding the batch script
//   - Classifying success, FATAL and log lines
//   - Settling pending entries through an ordered Registry
//
// Example usage:
//
//	client := protocol.NewClient(log, nil, nil)
//
//	batch := client.Send(ctx, socketPath, []string{"status", "list users"})
//	values, err := batch.Wait(ctx)
package protocol
