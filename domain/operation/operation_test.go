package operation

import "testing"

func TestCoordinate_Key(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		coord Coordinate
		want  string
	}{
		{"without tenant", NewCoordinate("orders.create", 3), "orders.create.v3"},
		{"with tenant", NewCoordinate("orders.create", 3).WithTenant("acme"), "orders.create.v3@acme"},
		{"zero version", NewCoordinate("search.query", 0), "search.query.v0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.coord.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCoordinate_Equal(t *testing.T) {
	t.Parallel()

	base := NewCoordinate("orders.create", 3)

	if !base.Equal(NewCoordinate("orders.create", 3)) {
		t.Error("identical coordinates should be equal")
	}
	if base.Equal(NewCoordinate("orders.create", 4)) {
		t.Error("different versions should not be equal")
	}
	if base.Equal(base.WithTenant("acme")) {
		t.Error("tenant-scoped coordinate should not equal unscoped one")
	}
	if !base.WithTenant("acme").Equal(base.WithTenant("acme")) {
		t.Error("same tenant should be equal")
	}
}

func TestMetadata_Merge(t *testing.T) {
	t.Parallel()

	base := Metadata{"a": 1, "b": "two"}
	merged := base.Merge(Metadata{"b": "three", "c": true})

	if merged["a"] != 1 || merged["b"] != "three" || merged["c"] != true {
		t.Errorf("Merge() = %v", merged)
	}
	if base["b"] != "two" {
		t.Error("Merge() must not mutate the receiver")
	}

	var empty Metadata
	if empty.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
	if s, ok := merged.String("b"); !ok || s != "three" {
		t.Errorf("String(b) = %q, %v", s, ok)
	}
}
