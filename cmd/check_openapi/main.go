package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const errorResponseRef = "#/components/responses/Error"

// errorCodes are the codes the portal writes in ErrorResponse.code.
var errorCodes = []string{
	"INVALID_INPUT",
	"INVALID_CREDENTIALS",
	"INVALID_STATUS",
	"ROLE_REQUIRED",
	"UNAUTHORIZED",
	"FORBIDDEN",
	"NOT_FOUND",
	"CONFLICT",
	"FILE_TOO_LARGE",
	"RATE_LIMITED",
	"UNAVAILABLE",
	"INTERNAL",
}

// routes lists every "METHOD path" the portal router serves.
var routes = []string{
	"GET /healthz",
	"GET /metrics",
	"POST /auth/register",
	"POST /auth/login",
	"POST /auth/google",
	"POST /auth/logout",
	"GET /auth/jwks",
	"GET /jobs",
	"POST /jobs",
	"GET /jobs/{id}",
	"PUT /jobs/{id}",
	"DELETE /jobs/{id}",
	"GET /jobs/recruiter/my-jobs",
	"GET /jobs/external",
	"GET /jobs/external/company/{name}",
	"POST /applications/{jobId}",
	"GET /applications/user",
	"GET /applications/job/{jobId}",
	"PUT /applications/{id}/status",
	"GET /users/me",
	"PUT /users/profile",
	"POST /users/upload-resume",
	"POST /users/upload-resume-file",
	"GET /uploads/{key}",
}

// Routes that never fail with an ErrorResponse.
var noErrorBody = map[string]bool{
	"GET /healthz":       true,
	"GET /metrics":       true,
	"GET /auth/jwks":     true,
	"GET /jobs/external": true,
}

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Enum       []string          `yaml:"enum"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type operation struct {
	Responses map[string]struct {
		Ref string `yaml:"$ref"`
	} `yaml:"responses"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(doc openAPIDoc) error {
	errSchema, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errSchema); err != nil {
		return err
	}
	ops, err := operations(doc)
	if err != nil {
		return err
	}
	var problems []string
	for _, route := range routes {
		op, ok := ops[route]
		if !ok {
			problems = append(problems, route+": not documented")
			continue
		}
		if noErrorBody[route] {
			continue
		}
		if ref := op.Responses["default"].Ref; ref != errorResponseRef {
			problems = append(problems, fmt.Sprintf("%s: default response must reference %s", route, errorResponseRef))
		}
	}
	served := makeSet(routes)
	for route := range ops {
		if !served[route] {
			problems = append(problems, route+": documented but not served")
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.New(strings.Join(problems, "\n"))
	}
	return nil
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// operations indexes documented operations as "METHOD path". Path-level keys
// such as parameters are skipped.
func operations(doc openAPIDoc) (map[string]operation, error) {
	out := make(map[string]operation)
	for path, item := range doc.Paths {
		for method, node := range item {
			switch method {
			case "get", "post", "put", "delete", "patch":
			default:
				continue
			}
			var op operation
			if err := node.Decode(&op); err != nil {
				return nil, fmt.Errorf("%s %s: %w", method, path, err)
			}
			out[strings.ToUpper(method)+" "+path] = op
		}
	}
	return out, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	documented := makeSet(s.Properties["code"].Enum)
	for _, code := range errorCodes {
		if !documented[code] {
			return fmt.Errorf("ErrorResponse.code enum missing %q", code)
		}
	}
	if len(documented) != len(errorCodes) {
		return fmt.Errorf("ErrorResponse.code enum has %d codes, expected %d", len(documented), len(errorCodes))
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
