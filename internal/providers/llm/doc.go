/*
Package llm is the language model client behind generation.

It speaks the OpenAI-compatible POST {base}/chat/completions API and
implements orchestrator.Model:

  - Classify sends the classifier prompt at temperature 0 and maps the answer
    onto LIVELY, PROFESSIONAL or REFUSAL.
  - Generate sends the profile's system prompt, the edit-mode prompt when the
    user is changing existing code, and the conversation. It asks for a JSON
    object {thought, explanation, code}.
  - Fix sends the previous source and the diagnostics rendered by the
    orchestrator, and returns only the new code.

Prompts live in prompts.toml and are embedded. Requests go through a rate
limiter and a circuit breaker; transport errors and 5xx answers are retried
by a retryablehttp transport. Malformed JSON answers are repaired before
they are rejected, and explanations are stripped of markup.

	client, err := llm.New(llm.Config{
		BaseURL: os.Getenv("LLM_BASE_URL"),
		APIKey:  os.Getenv("LLM_API_KEY"),
	}, nil)
*/
package llm
