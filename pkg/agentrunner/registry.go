package agentrunner

// NewDefaultRegistry returns the built-in agent set keyed by name, as
// required by Runner.Run's dispatch. Callers that need to
// override or add agents can build their own map instead of calling this.
func NewDefaultRegistry() map[string]Agent {
	agents := []Agent{
		NewGraphLinkingAgent(),
		NewTopicModelingAgent(),
		NewPatternDetectionAgent(),
		NewFeedbackLearningAgent(),
		NewLogseqExportAgent(),
	}
	reg := make(map[string]Agent, len(agents))
	for _, a := range agents {
		reg[a.Name()] = a
	}
	return reg
}
