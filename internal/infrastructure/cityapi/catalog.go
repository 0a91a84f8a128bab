package cityapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

type toolDef struct {
	schema *openapi3.Schema
	run    func(ctx context.Context, g *Gateway, args map[string]any) (any, error)
}

func (t toolDef) validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	return t.schema.VisitJSON(args)
}

func (g *Gateway) buildCatalog() error {
	defs := []struct {
		name        string
		description string
		parameters  map[string]any
		run         func(ctx context.Context, g *Gateway, args map[string]any) (any, error)
	}{
		{
			name:        "find_nearest_mfc",
			description: "Найти ближайший МФЦ по адресу пользователя",
			parameters: objectSchema(map[string]any{
				"user_address": stringProp("Адрес пользователя в Санкт-Петербурге"),
			}, "user_address"),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.findNearestMFC(ctx, args)
			},
		},
		{
			name:        "get_mfc_by_district",
			description: "Получить список МФЦ по названию района",
			parameters: objectSchema(map[string]any{
				"district": stringProp("Название района Санкт-Петербурга"),
			}, "district"),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.mfcByDistrict(ctx, args)
			},
		},
		{
			name:        "get_polyclinics_by_address",
			description: "Найти поликлиники по адресу пользователя",
			parameters: objectSchema(map[string]any{
				"user_address": stringProp("Адрес пользователя в Санкт-Петербурге"),
			}, "user_address"),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.polyclinicsByAddress(ctx, args)
			},
		},
		{
			name:        "get_schools_by_district",
			description: "Получить список школ по названию района",
			parameters: objectSchema(map[string]any{
				"district": stringProp("Название района Санкт-Петербурга"),
			}, "district"),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.schoolsByDistrict(ctx, args)
			},
		},
		{
			name:        "get_linked_schools",
			description: "Найти школы, привязанные к адресу",
			parameters: objectSchema(map[string]any{
				"user_address": stringProp("Адрес в Санкт-Петербурге"),
			}, "user_address"),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.linkedSchools(ctx, args)
			},
		},
		{
			name:        "get_dou",
			description: "Получить детские сады по фильтрам",
			parameters: objectSchema(map[string]any{
				"district":  stringProp("Название района"),
				"age_year":  intProp("Возраст ребенка в годах"),
				"age_month": intProp("Возраст ребенка в месяцах"),
			}, "district"),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.kindergartens(ctx, args)
			},
		},
		{
			name:        "pensioner_service",
			description: "Получить услуги для пенсионеров по району и категории",
			parameters: objectSchema(map[string]any{
				"district": stringProp("Название района"),
				"category": stringProp("Категория услуг"),
			}, "district"),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.pensionerServices(ctx, args)
			},
		},
		{
			name:        "afisha_all",
			description: "Получить список событий из афиши по датам",
			parameters: objectSchema(map[string]any{
				"start_date": stringProp("Дата начала в формате 2025-11-21T00:00:00"),
				"end_date":   stringProp("Дата окончания в формате 2025-12-22T00:00:00"),
				"categoria":  stringProp("Категория события"),
				"kids":       boolProp("Для детей"),
				"free":       boolProp("Бесплатные"),
			}, "start_date", "end_date"),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.afishaEvents(ctx, args)
			},
		},
		{
			name:        "get_beautiful_places",
			description: "Получить список красивых мест по фильтрам",
			parameters: objectSchema(map[string]any{
				"area":      stringProp("Область"),
				"categoria": stringProp("Категория"),
				"district":  stringProp("Район"),
			}),
			run: func(ctx context.Context, g *Gateway, args map[string]any) (any, error) {
				return g.beautifulPlaces(ctx, args)
			},
		},
	}

	g.tools = make(map[string]toolDef, len(defs))
	g.catalog = make([]domain.ToolSpec, 0, len(defs))
	for _, def := range defs {
		schema, err := compileSchema(def.parameters)
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", def.name, err)
		}
		g.tools[def.name] = toolDef{schema: schema, run: def.run}
		g.catalog = append(g.catalog, domain.ToolSpec{
			Name:        def.name,
			Description: def.description,
			Parameters:  def.parameters,
		})
	}
	return nil
}

func compileSchema(parameters map[string]any) (*openapi3.Schema, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return schema, nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}
