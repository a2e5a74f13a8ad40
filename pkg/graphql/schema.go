// Package graphql exposes a read-only query surface over registered
// products and their custody history. Dashboards use it to fetch exactly
// the fields they render instead of the full REST payload.
package graphql

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/shashiranjanraj/veritas/internal/provenance"
	"github.com/shashiranjanraj/veritas/pkg/collection"
	"github.com/shashiranjanraj/veritas/pkg/response"
)

var eventType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CustodyEvent",
	Fields: graphql.Fields{
		"kind":     &graphql.Field{Type: graphql.String},
		"time":     &graphql.Field{Type: graphql.String},
		"location": &graphql.Field{Type: graphql.String},
		"entity":   &graphql.Field{Type: graphql.String},
		"actor":    &graphql.Field{Type: graphql.String},
	},
})

var productType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Product",
	Fields: graphql.Fields{
		"id":           &graphql.Field{Type: graphql.Int},
		"serial":       &graphql.Field{Type: graphql.String},
		"name":         &graphql.Field{Type: graphql.String},
		"brand":        &graphql.Field{Type: graphql.String},
		"description":  &graphql.Field{Type: graphql.String},
		"imageUrl":     &graphql.Field{Type: graphql.String},
		"manufacturer": &graphql.Field{Type: graphql.String},
		"sold":         &graphql.Field{Type: graphql.Boolean},
		"state":        &graphql.Field{Type: graphql.String},
		"history":      &graphql.Field{Type: graphql.NewList(eventType)},
	},
})

type productView struct {
	ID           uint64      `json:"id"`
	Serial       string      `json:"serial"`
	Name         string      `json:"name"`
	Brand        string      `json:"brand"`
	Description  string      `json:"description"`
	ImageURL     string      `json:"imageUrl"`
	Manufacturer string      `json:"manufacturer"`
	Sold         bool        `json:"sold"`
	State        string      `json:"state"`
	History      []eventView `json:"history"`
}

type eventView struct {
	Kind     string `json:"kind"`
	Time     string `json:"time"`
	Location string `json:"location"`
	Entity   string `json:"entity"`
	Actor    string `json:"actor"`
}

// NewSchema builds the query schema over the given ledger.
func NewSchema(l provenance.Ledger) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"product": &graphql.Field{
				Type: productType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id, _ := p.Args["id"].(int)
					return resolveProduct(p, l, uint64(id))
				},
			},
			"productCount": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					n, err := l.ProductCount(p.Context)
					return int(n), err
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}

func resolveProduct(p graphql.ResolveParams, l provenance.Ledger, id uint64) (interface{}, error) {
	product, err := l.GetProduct(p.Context, id)
	if err != nil {
		return nil, err
	}
	history, err := l.GetHistory(p.Context, id)
	if err != nil {
		return nil, err
	}
	state, err := provenance.CurrentState(product, history)
	if err != nil {
		return nil, err
	}

	view := productView{
		ID:           product.ID,
		Serial:       product.Serial,
		Name:         product.Descriptor.Name,
		Brand:        product.Descriptor.Brand,
		Description:  product.Descriptor.Description,
		ImageURL:     product.Descriptor.ImageURL,
		Manufacturer: string(product.Manufacturer),
		Sold:         product.Sold,
		State:        state.String(),
	}
	view.History = collection.Map(history, func(ev provenance.CustodyEvent) eventView {
		return eventView{
			Kind:     string(ev.Kind),
			Time:     provenance.CanonicalTime(ev.Time),
			Location: ev.Location,
			Entity:   ev.Entity,
			Actor:    string(ev.Actor),
		}
	})
	return view, nil
}

// Handler serves POST /graphql requests against schema.
func Handler(schema graphql.Schema) http.HandlerFunc {
	type request struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "invalid GraphQL request body")
			return
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			Context:        r.Context(),
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result) //nolint:errcheck
	}
}
