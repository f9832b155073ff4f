package core

// GenerationSummary is the result surface of one generation run, suitable
// for logging and alerting by the invoking scheduler.
type GenerationSummary struct {
	TemplatesProcessed int
	InstancesGenerated int
	TemplatesSkipped   int
	AsOf               Date
}
