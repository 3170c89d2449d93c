// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing messages, tool calls and run state. They
// are not intended for production usage.
package testutil
