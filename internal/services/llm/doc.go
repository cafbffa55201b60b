// Package llm provides a chat-completion client for the subtitle pipeline.
//
// The client speaks the OpenAI-compatible chat completions API against
// whatever provider is configured in the settings store. Two model aliases
// exist: the normal model for translation batches and the thinking model
// for sentence segmentation, where deeper reasoning pays off.
//
// # Entry Points
//
// NewClient: construct client from Config.
// ConfigFromSettings: assemble Config from the settings store per job.
// Client.CompleteJSON / CompleteJSONThinking: send system/user prompts,
// receive a JSON payload.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 5 attempts by default).
// Context cancellation aborts retries immediately.
//
// # Payload Tolerance
//
// Models wrap JSON in code fences or prose more often than they should.
// DecodeLLMJSON strips fences and extracts the outermost object or array
// before giving up; Field pulls single values via gjson paths.
package llm
