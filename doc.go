// Package relaygrid is a unified, load-balanced, fault-tolerant client
// aggregator for multiple remote LLM completion providers. Callers submit
// GenerationRequests addressed to logical tasks; the Manager selects one of
// several configured provider Instances capable of serving that task,
// dispatches the call, records metrics, transparently retries on transient
// failures, and returns either a fully assembled response or an incremental
// chunk stream.
//
// Basic usage:
//
//	mgr, err := relaygrid.NewBuilder().
//		WithTask(types.NewTaskDefinition("chat")).
//		WithInstance(relaygrid.InstanceConfig{
//			ProviderType: "openai",
//			Model:        "gpt-4o-mini",
//			APIKey:       os.Getenv("OPENAI_API_KEY"),
//			Tasks:        []string{"chat"},
//		}).
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	resp, err := mgr.Generate(ctx, types.NewGenerationRequest("hello").WithTask("chat"))
package relaygrid
