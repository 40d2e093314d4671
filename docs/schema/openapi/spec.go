// Package openapi embeds the OpenAPI document for the HTTP API.
package openapi

import _ "embed"

// MaterialsSpec is the OpenAPI document served at /api/v1/openapi.yaml.
//
//go:embed mofgen.yaml
var MaterialsSpec []byte

// Spec returns a copy of the embedded document.
func Spec() []byte {
	return append([]byte(nil), MaterialsSpec...)
}
