// Package docs registers the API's OpenAPI document with swag, so the gin
// swagger handler can serve it at /swagger/doc.json.
package docs

//go:generate swag init --dir ../../cmd/vmmonitor,../handlers,../../pkg/models --generalInfo main.go --output . --outputTypes json

import (
	_ "embed"

	"github.com/swaggo/swag"
)

//go:embed swagger.json
var doc string

type spec struct{}

func (spec) ReadDoc() string {
	return doc
}

func init() {
	swag.Register(swag.Name, spec{})
}
