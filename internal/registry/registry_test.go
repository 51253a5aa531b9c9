package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/cadac/pkg/core"
)

func TestModelRegistry_Resolve(t *testing.T) {
	r := NewModelRegistry("client.users", "client.orders", "finance.revenue")
	current := core.NewModelIdentity("models/client/summary.sql", "client", "summary")

	tests := []struct {
		name string
		ref  core.RawReference
		want core.ResolvedDependency
	}{
		{
			name: "three parts are always external",
			ref:  core.RawReference{Database: "db", Schema: "client", Table: "users"},
			want: core.ExternalTable("db.client.users"),
		},
		{
			name: "two parts matching a model",
			ref:  core.RawReference{Schema: "finance", Table: "revenue"},
			want: core.InternalModel("finance.revenue"),
		},
		{
			name: "two parts without a model",
			ref:  core.RawReference{Schema: "raw", Table: "users"},
			want: core.ExternalTable("raw.users"),
		},
		{
			name: "one part in the current schema",
			ref:  core.RawReference{Table: "orders"},
			want: core.InternalModel("client.orders"),
		},
		{
			name: "one part never searches other schemas",
			ref:  core.RawReference{Table: "revenue"},
			want: core.ExternalTable("revenue"),
		},
		{
			name: "case insensitive match",
			ref:  core.RawReference{Schema: "Client", Table: "USERS"},
			want: core.InternalModel("client.users"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.ref, current))
		})
	}
}

func TestModelRegistry_ResolveBySchema(t *testing.T) {
	r := NewModelRegistry("client.users")

	fromClient := core.NewModelIdentity("models/client/active.sql", "client", "active")
	fromOther := core.NewModelIdentity("models/other/active.sql", "other", "active")

	assert.Equal(t, core.InternalModel("client.users"), r.Resolve(core.RawReference{Table: "users"}, fromClient))
	assert.Equal(t, core.ExternalTable("users"), r.Resolve(core.RawReference{Table: "users"}, fromOther))
	assert.Equal(t, core.ExternalTable("db.client.users"),
		r.Resolve(core.RawReference{Database: "db", Schema: "client", Table: "users"}, fromClient))
}

func TestModelRegistry_ResolveAll(t *testing.T) {
	r := NewModelRegistry("client.users", "client.orders")

	model := &core.ModelMetadata{
		Identity: core.NewModelIdentity("models/client/summary.sql", "client", "summary"),
		References: []core.RawReference{
			{Table: "users"},
			{Schema: "raw", Table: "events"},
			{Schema: "client", Table: "users"},
			{Table: "orders"},
			{Schema: "raw", Table: "events"},
		},
	}

	deps, externals := r.ResolveAll(model)
	assert.Equal(t, []string{"client.users", "client.orders"}, deps)
	assert.Equal(t, []string{"raw.events"}, externals)
	assert.Equal(t, []string{"raw.events"}, r.ExternalTables())
}
