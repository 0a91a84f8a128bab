// Package cityapi exposes the Yazzh city service gateways of Saint
// Petersburg as a tool catalog for the pipeline. Each tool wraps one or two
// REST calls; arguments are validated against the tool's JSON schema before
// any request goes out.
package cityapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
	"github.com/gorsovet/urban-advisor/internal/infrastructure/resilience"
)

// Saint Petersburg region code used by the geo gateway.
const regionCode = "78"

type Gateway struct {
	geoURL     string
	mainURL    string
	httpClient *http.Client
	executor   *resilience.Executor
	tools      map[string]toolDef
	catalog    []domain.ToolSpec
}

func New(geoURL, mainURL string, timeout time.Duration, executor *resilience.Executor) (*Gateway, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g := &Gateway{
		geoURL:     strings.TrimRight(geoURL, "/"),
		mainURL:    strings.TrimRight(mainURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
	if err := g.buildCatalog(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) Catalog() []domain.ToolSpec {
	out := make([]domain.ToolSpec, len(g.catalog))
	copy(out, g.catalog)
	return out
}

// Invoke validates the call's arguments and executes the named tool. The
// result is the tool's JSON payload rendered as a string.
func (g *Gateway) Invoke(ctx context.Context, call domain.ToolCall) (string, error) {
	tool, ok := g.tools[call.Name]
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "city_tool",
			fmt.Errorf("unknown tool %q", call.Name))
	}
	if err := tool.validate(call.Arguments); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "city_tool",
			fmt.Errorf("invalid arguments for %s: %w", call.Name, err))
	}

	var result any
	err := g.executor.Execute(ctx, "city_api_"+call.Name, func(ctx context.Context) error {
		var callErr error
		result, callErr = tool.run(ctx, g, call.Arguments)
		return callErr
	}, classifyCityError)
	if err != nil {
		return "", domain.WrapError(domain.ErrSourceUnavailable, "city_tool", err)
	}

	raw, err := json.Marshal(map[string]any{
		"function":  call.Name,
		"arguments": call.Arguments,
		"result":    result,
	})
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(raw), nil
}

// buildingIDByAddress resolves a street address to a building id through the
// geo gateway. The first match wins, same as the upstream behavior.
func (g *Gateway) buildingIDByAddress(ctx context.Context, address string) (int64, error) {
	params := url.Values{}
	params.Set("query", address)
	params.Set("count", "5")
	params.Set("region_of_search", regionCode)

	var decoded struct {
		Data []struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := g.getJSON(ctx, g.geoURL+"/geo/buildings/search/", params, &decoded); err != nil {
		return 0, fmt.Errorf("building search: %w", err)
	}
	if len(decoded.Data) == 0 {
		return 0, domain.WrapError(domain.ErrNotFound, "building_search",
			fmt.Errorf("no buildings match %q", address))
	}
	return decoded.Data[0].ID, nil
}

func (g *Gateway) findNearestMFC(ctx context.Context, args map[string]any) (any, error) {
	buildingID, err := g.buildingIDByAddress(ctx, stringArg(args, "user_address"))
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("id_building", strconv.FormatInt(buildingID, 10))

	var mfc map[string]any
	if err := g.getJSON(ctx, g.mainURL+"/mfc/", params, &mfc); err != nil {
		return nil, err
	}
	return map[string]any{
		"name":     mfc["name"],
		"address":  mfc["address"],
		"metro":    mfc["nearest_metro"],
		"phones":   mfc["phone"],
		"hours":    mfc["working_hours"],
		"coords":   mfc["coordinates"],
		"link":     mfc["link"],
		"chat_bot": mfc["chat_bot"],
	}, nil
}

func (g *Gateway) mfcByDistrict(ctx context.Context, args map[string]any) (any, error) {
	params := url.Values{}
	params.Set("district", stringArg(args, "district"))

	var decoded struct {
		Count int              `json:"count"`
		Data  []map[string]any `json:"data"`
	}
	if err := g.getJSON(ctx, g.mainURL+"/mfc/district/", params, &decoded); err != nil {
		return nil, err
	}

	offices := make([]map[string]any, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		offices = append(offices, map[string]any{
			"name":    item["name"],
			"address": item["address"],
			"hours":   item["working_hours"],
		})
	}
	return map[string]any{"count": decoded.Count, "offices": offices}, nil
}

func (g *Gateway) polyclinicsByAddress(ctx context.Context, args map[string]any) (any, error) {
	buildingID, err := g.buildingIDByAddress(ctx, stringArg(args, "user_address"))
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("id", strconv.FormatInt(buildingID, 10))

	var clinics []map[string]any
	if err := g.getJSON(ctx, g.mainURL+"/polyclinics/", params, &clinics); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(clinics))
	for _, clinic := range clinics {
		out = append(out, map[string]any{
			"name":    clinic["clinic_name"],
			"address": clinic["clinic_address"],
			"phones":  clinic["phone"],
			"url":     clinic["url"],
		})
	}
	return out, nil
}

func (g *Gateway) schoolsByDistrict(ctx context.Context, args map[string]any) (any, error) {
	var decoded struct {
		Data []map[string]any `json:"data"`
	}
	if err := g.getJSON(ctx, g.mainURL+"/school/map/", nil, &decoded); err != nil {
		return nil, err
	}

	district := stringArg(args, "district")
	out := make([]map[string]any, 0)
	for _, school := range decoded.Data {
		if school["district"] == district {
			out = append(out, school)
		}
	}
	return out, nil
}

func (g *Gateway) linkedSchools(ctx context.Context, args map[string]any) (any, error) {
	buildingID, err := g.buildingIDByAddress(ctx, stringArg(args, "user_address"))
	if err != nil {
		return nil, err
	}

	var decoded any
	path := fmt.Sprintf("%s/school/linked/%d", g.mainURL, buildingID)
	if err := g.getJSON(ctx, path, nil, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func (g *Gateway) kindergartens(ctx context.Context, args map[string]any) (any, error) {
	params := url.Values{}
	params.Set("district", stringArg(args, "district"))
	params.Set("legal_form", "Государственная")
	params.Set("doo_status", "Функционирует")
	params.Set("age_year", strconv.Itoa(intArg(args, "age_year")))
	params.Set("age_month", strconv.Itoa(intArg(args, "age_month")))

	var decoded any
	if err := g.getJSON(ctx, g.mainURL+"/dou/", params, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func (g *Gateway) pensionerServices(ctx context.Context, args map[string]any) (any, error) {
	params := url.Values{}
	params.Set("district", stringArg(args, "district"))
	params.Set("category", stringArg(args, "category"))
	params.Set("count", "21")
	params.Set("page", "1")

	var decoded any
	if err := g.getJSON(ctx, g.mainURL+"/pensioner/services/", params, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func (g *Gateway) afishaEvents(ctx context.Context, args map[string]any) (any, error) {
	params := url.Values{}
	params.Set("start_date", stringArg(args, "start_date"))
	params.Set("end_date", stringArg(args, "end_date"))
	if categoria := stringArg(args, "categoria"); categoria != "" {
		params.Set("categoria", categoria)
	}
	if kids, ok := boolArg(args, "kids"); ok {
		params.Set("kids", strconv.FormatBool(kids))
	}
	if free, ok := boolArg(args, "free"); ok {
		params.Set("free", strconv.FormatBool(free))
	}

	var decoded any
	if err := g.getJSON(ctx, g.mainURL+"/afisha/all/", params, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func (g *Gateway) beautifulPlaces(ctx context.Context, args map[string]any) (any, error) {
	params := url.Values{}
	for _, key := range []string{"area", "categoria", "district"} {
		if value := stringArg(args, key); value != "" {
			params.Set(key, value)
		}
	}

	var decoded any
	if err := g.getJSON(ctx, g.mainURL+"/beautiful_places/", params, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func (g *Gateway) getJSON(ctx context.Context, rawURL string, params url.Values, target any) error {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("region", regionCode)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("city api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(string(raw)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode city api response: %w", err)
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}
