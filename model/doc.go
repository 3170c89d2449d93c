// Package model defines the provider-agnostic abstraction of the completion
// service and helpers around it.
//
// A Model receives the conversation (already prefixed with the active role's
// system prompt) plus the tool catalog bound to that role and returns exactly
// one assistant message, which may request tool calls.
//
// Providers (OpenAI-compatible endpoints such as LiteLLM, Anthropic) live in
// sub-packages. MockModel scripts responses for tests and CircuitBreaker
// fails fast when a provider keeps erroring. Nothing in this package retries.
package model
