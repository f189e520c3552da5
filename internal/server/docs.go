package server

import (
	"encoding/json"
	"html/template"
	"net/http"
	"path"
	"reflect"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

var docsPage = template.Must(template.New("docs").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Guildline API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => SwaggerUIBundle({url: {{.SpecURL}}, dom_id: '#swagger-ui'});
    </script>
    <p>Send X-Actor-Id with every write.</p>
  </body>
</html>`))

// mountDocs serves the OpenAPI document at <base>/openapi.json and Swagger UI at <base>/docs.
func mountDocs(r chi.Router, api huma.API, basePath string) {
	specURL := path.Join(basePath, "openapi.json")
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(specURL, func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			documentErrors(oas)
			documentActorHeader(oas)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
	r.Get(path.Join(basePath, "docs"), func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		docsPage.Execute(w, struct{ SpecURL string }{specURL})
	})
}

func eachOperation(oas *huma.OpenAPI, writesOnly bool, fn func(*huma.Operation)) {
	for _, item := range oas.Paths {
		ops := []*huma.Operation{item.Post, item.Put, item.Patch, item.Delete}
		if !writesOnly {
			ops = append(ops, item.Get, item.Head, item.Options, item.Trace)
		}
		for _, op := range ops {
			if op != nil {
				fn(op)
			}
		}
	}
}

// documentErrors adds the error envelope as every operation's default response.
func documentErrors(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	schema := &huma.Schema{Type: "object"}
	if oas.Components != nil && oas.Components.Schemas != nil {
		schema = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	eachOperation(oas, false, func(op *huma.Operation) {
		if op.Responses == nil {
			op.Responses = map[string]*huma.Response{}
		}
		op.Responses["default"] = &huma.Response{
			Description: "Error",
			Content:     map[string]*huma.MediaType{"application/json": {Schema: schema}},
		}
	})
}

func documentActorHeader(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	eachOperation(oas, true, func(op *huma.Operation) {
		op.Parameters = append(op.Parameters, &huma.Param{
			Name:        actorHeader,
			In:          "header",
			Description: "Member acting on the guild. Not verified.",
			Schema:      &huma.Schema{Type: "string"},
		})
	})
}
