package clickhouse

import (
	"testing"

	"github.com/stretchr/testify/require"
	"hermannm.dev/cubes/olap"
)

func BenchmarkBuildExecuteQuery(b *testing.B) {
	definitions := parseTestDefinitions(b)
	cube, err := definitions.cubeByID("[Traffic]")
	require.NoError(b, err)

	var state olap.QueryState
	state.Drill("[Traffic]")
	state.Push("[Measures].[Goods Quantity]")
	state.Push("[Measures].[Trips]")
	state.Slice("[Zone].[Zone]", []string{"[Zone].[France].[Alsace]", "[Zone].[France].[Bretagne]"}, false)
	state.Slice("[Time].[Time]", []string{"[Time].[2000].[1]", "[Time].[2000].[2]"}, false)
	state.Dice([]string{"[Zone].[Zone]", "[Time].[Time]"})

	b.ResetTimer()
	for range b.N {
		if _, err := buildExecuteQuery(cube, state); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBuildMembersQuery(b *testing.B) {
	definitions := parseTestDefinitions(b)
	cube, err := definitions.cube("Traffic", "[Traffic]")
	require.NoError(b, err)
	dimension, hierarchy, err := cube.hierarchy("[Zone].[Zone]")
	require.NoError(b, err)

	request := olap.ExploreRequest{
		Path: []string{
			"Traffic", "[Traffic]", "[Zone]", "[Zone].[Zone]", "[Zone].[Zone].[Country]", "[Zone].[France]",
		},
		WithProperties: true,
	}

	b.ResetTimer()
	for range b.N {
		if _, err := buildMembersQuery(cube, dimension, hierarchy, request); err != nil {
			b.Fatal(err)
		}
	}
}
