package toolbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// NoSimulatorGUID is the Toolbox's placeholder for "no metabolism simulator".
const NoSimulatorGUID = "00000000-0000-0000-0000-000000000000"

func seg(s string) string {
	return url.PathEscape(s)
}

// ModelMetadata returns the metadata document for an object GUID.
func (c *Client) ModelMetadata(ctx context.Context, guid string) (any, error) {
	return c.get(ctx, "/api/v6/about/object/"+seg(guid), nil)
}

// ListCalculators lists calculator modules.
func (c *Client) ListCalculators(ctx context.Context) (any, error) {
	return c.get(ctx, "/api/v6/calculation", nil)
}

// CalculatorInfo describes one calculator.
func (c *Client) CalculatorInfo(ctx context.Context, guid string) (any, error) {
	return c.get(ctx, "/api/v6/calculation/"+seg(guid)+"/info", nil)
}

// ListProfilers lists profilers.
func (c *Client) ListProfilers(ctx context.Context) (any, error) {
	return c.get(ctx, "/api/v6/profiling", nil)
}

// ProfilerInfo describes one profiler.
func (c *Client) ProfilerInfo(ctx context.Context, guid string) (any, error) {
	return c.get(ctx, "/api/v6/profiling/"+seg(guid)+"/info", nil)
}

// ListSimulators lists metabolism simulators.
func (c *Client) ListSimulators(ctx context.Context) (any, error) {
	return c.get(ctx, "/api/v6/metabolism", nil)
}

// SimulatorInfo describes one metabolism simulator.
func (c *Client) SimulatorInfo(ctx context.Context, guid string) (any, error) {
	return c.get(ctx, "/api/v6/metabolism/"+seg(guid)+"/info", nil)
}

// EndpointTree returns the endpoint tree positions.
func (c *Client) EndpointTree(ctx context.Context) (any, error) {
	return c.get(ctx, "/api/v6/data/endpointtree", nil)
}

// MetadataHierarchy returns the data metadata hierarchy.
func (c *Client) MetadataHierarchy(ctx context.Context) (any, error) {
	return c.get(ctx, "/api/v6/data/metadatahierarchy", nil)
}

// ListQSARModels lists the QSAR models registered at an endpoint tree
// position, e.g. "ECOTOX#Aquatic#Daphnia".
func (c *Client) ListQSARModels(ctx context.Context, position string) (any, error) {
	return c.get(ctx, "/api/v6/qsar/list/"+seg(position), nil)
}

// ListWorkflows lists the installed workflows.
func (c *Client) ListWorkflows(ctx context.Context) (any, error) {
	return c.get(ctx, "/api/v6/workflows", nil)
}

// ListSearchDatabases lists the databases searches run against.
func (c *Client) ListSearchDatabases(ctx context.Context) (any, error) {
	return c.get(ctx, "/api/v6/search/databases", nil)
}

// RunPrediction applies a QSAR model to a SMILES structure.
func (c *Client) RunPrediction(ctx context.Context, smiles, modelID string) (any, error) {
	return c.call(ctx, request{
		method: http.MethodPost,
		path:   "/api/v6/qsar/apply",
		body:   map[string]string{"smiles": smiles, "modelId": modelID},
	})
}

// ApplyQSARModel applies a QSAR model to a registered chemical.
func (c *Client) ApplyQSARModel(ctx context.Context, qsarGUID, chemID string) (any, error) {
	return c.get(ctx, "/api/v6/qsar/apply/"+seg(qsarGUID)+"/"+seg(chemID), nil)
}

// QSARDomain reports whether a chemical falls in a model's applicability
// domain.
func (c *Client) QSARDomain(ctx context.Context, qsarGUID, chemID string) (any, error) {
	return c.get(ctx, "/api/v6/qsar/domain/"+seg(qsarGUID)+"/"+seg(chemID), nil)
}

// EndpointDataOptions narrows an endpoint data query.
type EndpointDataOptions struct {
	Endpoint        string
	Position        string
	IncludeMetadata bool
}

// EndpointData returns experimental data recorded for a chemical.
func (c *Client) EndpointData(ctx context.Context, chemID string, opts EndpointDataOptions) (any, error) {
	q := url.Values{}
	if opts.Endpoint != "" {
		q.Set("endpoint", opts.Endpoint)
	}
	if opts.Position != "" {
		q.Set("position", opts.Position)
	}
	if opts.IncludeMetadata {
		q.Set("includeMetadata", "true")
	}
	return c.getHeavy(ctx, "/api/v6/data/"+seg(chemID), q)
}

// ProfileChemical runs every profiler against a chemical.
func (c *Client) ProfileChemical(ctx context.Context, chemID string) (any, error) {
	return c.getHeavy(ctx, "/api/v6/profiling/all/"+seg(chemID), nil)
}

// GenerateMetabolites simulates metabolism of a SMILES structure.
func (c *Client) GenerateMetabolites(ctx context.Context, smiles, simulatorGUID string) (any, error) {
	if strings.TrimSpace(simulatorGUID) == "" {
		return nil, fmt.Errorf("%w: a simulator GUID is required to generate metabolites", ErrInvalidRequest)
	}
	q := url.Values{"smiles": {smiles}}
	return c.getHeavy(ctx, "/api/v6/metabolism/"+seg(simulatorGUID), q)
}

// Search modes accepted by SearchChemicals.
const (
	SearchAuto   = "auto"
	SearchName   = "name"
	SearchCAS    = "cas"
	SearchSMILES = "smiles"
)

// nameSearchOptions lists, per mode, the Toolbox name-match options tried
// in order until one returns results.
var nameSearchOptions = map[string][]string{
	"name":          {"ExactMatch", "StartWith", "Contains"},
	"auto":          {"ExactMatch", "StartWith", "Contains"},
	"exact":         {"ExactMatch"},
	"name_exact":    {"ExactMatch"},
	"contains":      {"Contains"},
	"name_contains": {"Contains"},
	"starts_with":   {"StartWith"},
	"startswith":    {"StartWith"},
	"prefix":        {"StartWith"},
}

var nonDigits = regexp.MustCompile(`[^0-9]`)

// SearchChemicals looks up chemicals by CAS number, SMILES or name.
//
// A CAS query is tried as given and then with digits only. Name modes try
// each match option in turn and return the first non-empty result. An
// unknown mode searches by name. When every attempt fails, the last error
// is returned; when every attempt is empty, the result is an empty list.
func (c *Client) SearchChemicals(ctx context.Context, query, mode string, ignoreStereo bool) (any, error) {
	lookup := strings.TrimSpace(query)
	if lookup == "" {
		return nil, fmt.Errorf("%w: search query must not be empty", ErrInvalidRequest)
	}
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = SearchAuto
	}
	ignore := strconv.FormatBool(ignoreStereo)

	switch mode {
	case SearchCAS:
		paths := []string{"/api/v6/search/cas/" + seg(lookup) + "/" + ignore}
		if digits := nonDigits.ReplaceAllString(lookup, ""); digits != "" && digits != lookup {
			paths = append(paths, "/api/v6/search/cas/"+digits+"/"+ignore)
		}
		return c.firstNonEmpty(ctx, paths)

	case SearchSMILES, "structure":
		return c.get(ctx, "/api/v6/search/smiles/false/"+ignore, url.Values{"smiles": {lookup}})
	}

	options, ok := nameSearchOptions[mode]
	if !ok {
		options = nameSearchOptions[SearchName]
	}
	paths := make([]string, len(options))
	for i, opt := range options {
		paths[i] = "/api/v6/search/name/" + seg(lookup) + "/" + opt + "/" + ignore
	}
	return c.firstNonEmpty(ctx, paths)
}

func (c *Client) firstNonEmpty(ctx context.Context, paths []string) (any, error) {
	var lastErr error
	for _, p := range paths {
		v, err := c.get(ctx, p, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if !isEmpty(v) {
			return v, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return []any{}, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case string:
		return t == ""
	default:
		return false
	}
}
