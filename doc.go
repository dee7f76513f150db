// Package counsel is the orchestration core of a conversational advisory
// system: one user utterance becomes a dependency-ordered plan of specialist
// sub-tasks, executed under a concurrency and streaming contract, then folded
// into a single coherent answer.
//
// # Quick Start
//
//	provider := openaicompat.NewProvider(apiKey, "deepseek-chat", baseURL)
//	registry := counsel.NewToolRegistry()
//	registry.Add(policy.New(kb, cache))
//
//	engine := counsel.NewEngine(
//		counsel.DefaultRoles(),
//		counsel.NewPlanner(provider, counsel.DefaultRoles()),
//		provider,
//		registry,
//		counsel.NewMemoryContextStore(24*time.Hour),
//	)
//
//	ch := make(chan counsel.Event, 64)
//	go engine.Process(ctx, counsel.Request{SessionID: sid, Input: text}, ch)
//	for ev := range ch { relay(ev) }
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider]: chat-completion backend (one-shot and streaming calls)
//   - [Tool]: schema-declared capability invokable via function calling
//   - [ContextStore]: per-session conversation state with a TTL
//   - [Cache]: best-effort TTL cache for tool lookups
//
// # Included Implementations
//
// Providers: provider/openaicompat (OpenAI-compatible chat APIs).
// Storage: store/sqlite (local, pure Go), store/postgres.
// Tools: tools/policy, tools/market, tools/news, backed by the knowledge
// package's keyword-searched corpus.
//
// The core is transport-agnostic: callers receive a typed event stream on a
// channel and relay it however they like. See cmd/counseld for the SSE server.
package counsel
