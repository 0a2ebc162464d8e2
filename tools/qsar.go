package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jonwraymond/qsargate/toolbox"
)

// Toolbox is the part of the QSAR Toolbox client the tools use.
type Toolbox interface {
	ModelMetadata(ctx context.Context, guid string) (any, error)
	SearchChemicals(ctx context.Context, query, mode string, ignoreStereo bool) (any, error)
	RunPrediction(ctx context.Context, smiles, modelID string) (any, error)
	EndpointData(ctx context.Context, chemID string, opts toolbox.EndpointDataOptions) (any, error)
	ProfileChemical(ctx context.Context, chemID string) (any, error)
	GenerateMetabolites(ctx context.Context, smiles, simulatorGUID string) (any, error)
	ListProfilers(ctx context.Context) (any, error)
	ListSimulators(ctx context.Context) (any, error)
	ListCalculators(ctx context.Context) (any, error)
	ListQSARModels(ctx context.Context, position string) (any, error)
	ListWorkflows(ctx context.Context) (any, error)
}

// Ensure toolbox.Client satisfies Toolbox
var _ Toolbox = (*toolbox.Client)(nil)

// Tool categories.
const (
	CategoryDiscovery  = "discovery"
	CategoryPrediction = "prediction"
)

// qsarTool pairs a definition with its implementation.
type qsarTool struct {
	def  mcp.Tool
	fn   Func
	opts []Option
}

// RegisterQSARTools registers the QSAR tool set backed by tb.
func RegisterQSARTools(r *Registry, tb Toolbox) error {
	for _, t := range qsarTools(tb) {
		if err := r.RegisterTool(t.def, t.fn, t.opts...); err != nil {
			return err
		}
	}
	return nil
}

func qsarTools(tb Toolbox) []qsarTool {
	discovery := []Option{WithCategory(CategoryDiscovery), ReadOnly()}
	prediction := []Option{WithCategory(CategoryPrediction)}

	return []qsarTool{
		{
			def: mcp.NewTool("get_public_qsar_model_info",
				mcp.WithDescription("Retrieves metadata and status information for a specified public QSAR model from the O-QT Toolbox."),
				mcp.WithString("model_id", mcp.Required(), mcp.Description("The unique identifier for the QSAR model.")),
			),
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				return tb.ModelMetadata(ctx, stringArg(args, "model_id"))
			},
			opts: discovery,
		},
		{
			def: mcp.NewTool("search_chemicals",
				mcp.WithDescription("Searches the QSAR Toolbox database for chemical structures by name, CAS number, or SMILES."),
				mcp.WithString("query", mcp.Required(), mcp.Description("The search term (Name, CAS number, or SMILES).")),
				mcp.WithString("search_type",
					mcp.Description("Type of search (e.g., 'auto', 'name', 'cas', 'smiles')."),
					mcp.DefaultString(toolbox.SearchAuto),
				),
			),
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				mode := stringArg(args, "search_type")
				if mode == "" {
					mode = toolbox.SearchAuto
				}
				return tb.SearchChemicals(ctx, stringArg(args, "query"), mode, false)
			},
			opts: discovery,
		},
		{
			def: mcp.NewTool("run_qsar_prediction",
				mcp.WithDescription("Executes a QSAR prediction for a chemical structure (SMILES string) using a specified model."),
				mcp.WithString("smiles", mcp.Required(), mcp.Description("The SMILES representation of the chemical structure.")),
				mcp.WithString("model_id", mcp.Required(), mcp.Description("The identifier of the QSAR model to use for prediction.")),
			),
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				return tb.RunPrediction(ctx, stringArg(args, "smiles"), stringArg(args, "model_id"))
			},
			opts: prediction,
		},
		{
			def: mcp.NewTool("analyze_chemical_hazard",
				mcp.WithDescription("Performs a hazard analysis by fetching experimental data and running profilers for a specific toxicological endpoint."),
				mcp.WithString("chemical_identifier", mcp.Required(), mcp.Description("CAS number or SMILES of the chemical.")),
				mcp.WithString("endpoint", mcp.Required(), mcp.Description("The toxicological endpoint to analyze (e.g., 'Skin Sensitization', 'Mutagenicity').")),
			),
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				return analyzeHazard(ctx, tb, stringArg(args, "chemical_identifier"), stringArg(args, "endpoint"))
			},
			opts: prediction,
		},
		{
			def: mcp.NewTool("generate_metabolites",
				mcp.WithDescription("Simulates the metabolism of a chemical structure using a specified simulator (e.g., Liver, Skin)."),
				mcp.WithString("smiles", mcp.Required(), mcp.Description("The SMILES representation of the chemical structure.")),
				mcp.WithString("simulator", mcp.Required(), mcp.Description("The metabolism simulator to use (e.g., 'Liver', 'Skin', 'Microbial').")),
			),
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				return tb.GenerateMetabolites(ctx, stringArg(args, "smiles"), stringArg(args, "simulator"))
			},
			opts: prediction,
		},
		{
			def: mcp.NewTool("list_profilers",
				mcp.WithDescription("Returns the catalog of profilers available in the OECD QSAR Toolbox."),
			),
			fn:   listTool("profilers", tb.ListProfilers),
			opts: discovery,
		},
		{
			def: mcp.NewTool("list_simulators",
				mcp.WithDescription("Lists available metabolism simulators exposed by the QSAR Toolbox."),
			),
			fn:   listTool("simulators", tb.ListSimulators),
			opts: discovery,
		},
		{
			def: mcp.NewTool("list_calculators",
				mcp.WithDescription("Lists calculator modules (physical properties) available in the QSAR Toolbox."),
			),
			fn:   listTool("calculators", tb.ListCalculators),
			opts: discovery,
		},
		{
			def: mcp.NewTool("list_qsar_models",
				mcp.WithDescription("Lists QSAR models registered at an endpoint tree position."),
				mcp.WithString("position", mcp.Required(), mcp.Description("Endpoint tree position (e.g., 'ECOTOX#Aquatic#Daphnia').")),
			),
			fn: func(ctx context.Context, args map[string]any) (any, error) {
				position := stringArg(args, "position")
				models, err := tb.ListQSARModels(ctx, position)
				if err != nil {
					return nil, err
				}
				return map[string]any{"position": position, "models": objectList(models)}, nil
			},
			opts: discovery,
		},
		{
			def: mcp.NewTool("list_workflows",
				mcp.WithDescription("Lists the workflows installed in the QSAR Toolbox."),
			),
			fn:   listTool("workflows", tb.ListWorkflows),
			opts: discovery,
		},
	}
}

// listTool wraps a discovery call whose result is a list of objects.
func listTool(key string, list func(context.Context) (any, error)) Func {
	return func(ctx context.Context, _ map[string]any) (any, error) {
		data, err := list(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{key: objectList(data)}, nil
	}
}

// analyzeHazard combines endpoint data and full profiling for a chemical.
func analyzeHazard(ctx context.Context, tb Toolbox, chemical, endpoint string) (any, error) {
	data, err := tb.EndpointData(ctx, chemical, toolbox.EndpointDataOptions{Endpoint: endpoint})
	if err != nil {
		return nil, err
	}
	profiling, err := tb.ProfileChemical(ctx, chemical)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"chemical_identifier": chemical,
		"endpoint":            endpoint,
		"endpoint_data":       data,
		"profiling":           profiling,
	}, nil
}

// objectList keeps the JSON objects of a list response. A single object
// becomes a one-element list; anything else becomes an empty list.
func objectList(v any) []map[string]any {
	out := []map[string]any{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	case map[string]any:
		out = append(out, t)
	}
	return out
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
