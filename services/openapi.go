package services

import (
	"fmt"
	"net/http"
	"path"
	"reflect"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/jadapache/raices-vivas/core"
)

const bearerScheme = "bearer"

// BuildOpenAPI describes endpoints mounted under basePath as an OpenAPI 3
// document. Request schemas are generated from the example bodies.
func BuildOpenAPI(title, version, basePath string, endpoints []core.Endpoint) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info:    &openapi3.Info{Title: title, Version: version},
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{},
			SecuritySchemes: openapi3.SecuritySchemes{
				bearerScheme: &openapi3.SecuritySchemeRef{Value: openapi3.NewJWTSecurityScheme()},
			},
		},
	}

	errorSchema, err := openapi3gen.NewSchemaRefForValue(core.ErrorResponse{}, doc.Components.Schemas)
	if err != nil {
		return nil, fmt.Errorf("failed to build error schema: %w", err)
	}
	doc.Components.Schemas["ErrorResponse"] = errorSchema

	// stable output regardless of registry order
	sorted := append([]core.Endpoint(nil), endpoints...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Method < sorted[j].Method
	})

	for _, ep := range sorted {
		op, err := buildOperation(ep, doc.Components.Schemas)
		if err != nil {
			return nil, fmt.Errorf("failed to describe %s %s: %w", ep.Method, ep.Path, err)
		}
		doc.AddOperation(path.Join(basePath, ep.Path), ep.Method, op)
	}

	return doc, nil
}

func buildOperation(ep core.Endpoint, schemas openapi3.Schemas) (*openapi3.Operation, error) {
	meta := ep.Metadata
	op := &openapi3.Operation{
		OperationID: meta.OperationID,
		Summary:     meta.Description,
	}
	if meta.Tag != "" {
		op.Tags = []string{meta.Tag}
	}
	if ep.Protected {
		op.Security = openapi3.NewSecurityRequirements().
			With(openapi3.NewSecurityRequirement().Authenticate(bearerScheme))
	}

	if meta.RequestBody != nil {
		ref, err := openapi3gen.NewSchemaRefForValue(meta.RequestBody, schemas)
		if err != nil {
			return nil, err
		}
		name := reflect.TypeOf(meta.RequestBody).Name()
		schemas[name] = ref
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/"+name, nil)),
		}
	}

	codes := make([]int, 0, len(meta.Responses))
	for code := range meta.Responses {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	opts := make([]openapi3.NewResponsesOption, 0, len(codes))
	for _, code := range codes {
		resp := openapi3.NewResponse().WithDescription(meta.Responses[code])
		if code >= http.StatusBadRequest {
			resp = resp.WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil))
		}
		opts = append(opts, openapi3.WithStatus(code, &openapi3.ResponseRef{Value: resp}))
	}
	if len(opts) == 0 {
		opts = append(opts, openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().WithDescription(http.StatusText(http.StatusOK)),
		}))
	}
	op.Responses = openapi3.NewResponses(opts...)

	return op, nil
}
