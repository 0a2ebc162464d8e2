// Package tools holds the tool registry, the invocation pipeline and the
// QSAR tool set.
//
// A Registry stores MCP tool definitions with their implementations and
// compiled input schemas. A Pipeline runs one call through lookup,
// authorization, schema validation and execution, and reports failures as
// *Error values whose Kind tells the transport layer which status to use.
//
// Typical wiring:
//
//	reg := tools.NewRegistry()
//	if err := tools.RegisterQSARTools(reg, client); err != nil {
//		return err
//	}
//	p := tools.NewPipeline(reg, tools.PipelineConfig{Authorizer: rbac})
//	result, err := p.Call(ctx, principal, "search_chemicals", args)
package tools
