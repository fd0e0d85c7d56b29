package olaptest

const (
	Schema  = "Traffic"
	Cube    = "[Traffic]"
	Measure = "[Measures].[Goods Quantity]"

	MeasureDimension = "[Measures]"
	MeasureHierarchy = "[Measures]"
	MeasureLevel     = "[Measures].[MeasuresLevel]"

	TimeDimension = "[Time]"
	TimeHierarchy = "[Time].[Time]"
	YearLevel     = "[Time].[Time].[Year]"
	QuarterLevel  = "[Time].[Time].[Quarter]"

	ZoneDimension = "[Zone]"
	ZoneHierarchy = "[Zone].[Zone]"
	CountryLevel  = "[Zone].[Zone].[Country]"
	RegionLevel   = "[Zone].[Zone].[Region]"

	ProductDimension = "[Product]"
	ProductHierarchy = "[Product].[Product]"
	CategoryLevel    = "[Product].[Product].[Category]"
)

// NewTrafficAPI returns an API serving a small traffic cube:
//
//	[Time]    (Time)     Year: 2000, 2001 > Quarter: Q1-Q4 of 2000
//	[Zone]    (Geometry) Country: France, Spain > Region (with geometry property)
//	[Product] (Standard) Category: Drink, Food
func NewTrafficAPI() *API {
	api := NewAPI()

	api.SetExplore(`{"Traffic": {"caption": "Traffic"}}`)
	api.SetExplore(`{"[Traffic]": {"caption": "Traffic", "description": "Road traffic"}}`, Schema)
	api.SetExplore(`{
		"[Measures]": {"caption": "Measures", "type": "Measure"},
		"[Time]": {"caption": "Time", "type": "Time"},
		"[Zone]": {"caption": "Zone", "type": "Geometry"},
		"[Product]": {"caption": "Product", "type": "Standard"}
	}`, Schema, Cube)

	api.SetExplore(`{"[Measures]": {"caption": "Measures"}}`, Schema, Cube, MeasureDimension)
	api.SetExplore(`[{"id": "[Measures].[MeasuresLevel]", "caption": "Measures", "list-properties": {}}]`,
		Schema, Cube, MeasureDimension, MeasureHierarchy)
	api.SetExplore(`{
		"[Measures].[Goods Quantity]": {"caption": "Goods Quantity"},
		"[Measures].[Max Quantity]": {"caption": "Max Quantity"},
		"[Measures].[Unit Sales]": {"caption": "Unit Sales"}
	}`, Schema, Cube, MeasureDimension, MeasureHierarchy, MeasureLevel)

	api.SetExplore(`{"[Time].[Time]": {"caption": "Time"}}`, Schema, Cube, TimeDimension)
	api.SetExplore(`[
		{"id": "[Time].[Time].[Year]", "caption": "Year", "list-properties": {}},
		{"id": "[Time].[Time].[Quarter]", "caption": "Quarter", "list-properties": {}}
	]`, Schema, Cube, TimeDimension, TimeHierarchy)
	api.SetExplore(`{
		"[Time].[2000]": {"caption": "2000"},
		"[Time].[2001]": {"caption": "2001"}
	}`, Schema, Cube, TimeDimension, TimeHierarchy, YearLevel)
	api.SetExplore(`{
		"[Time].[2000].[Q1]": {"caption": "Q1 2000"},
		"[Time].[2000].[Q2]": {"caption": "Q2 2000"},
		"[Time].[2000].[Q3]": {"caption": "Q3 2000"},
		"[Time].[2000].[Q4]": {"caption": "Q4 2000"}
	}`, Schema, Cube, TimeDimension, TimeHierarchy, YearLevel, "[Time].[2000]")
	api.SetExplore(`{
		"[Time].[2001].[Q1]": {"caption": "Q1 2001"},
		"[Time].[2001].[Q2]": {"caption": "Q2 2001"}
	}`, Schema, Cube, TimeDimension, TimeHierarchy, YearLevel, "[Time].[2001]")
	api.SetExplore(`{
		"[Time].[2000].[Q1]": {"caption": "Q1 2000"},
		"[Time].[2000].[Q2]": {"caption": "Q2 2000"},
		"[Time].[2000].[Q3]": {"caption": "Q3 2000"},
		"[Time].[2000].[Q4]": {"caption": "Q4 2000"},
		"[Time].[2001].[Q1]": {"caption": "Q1 2001"},
		"[Time].[2001].[Q2]": {"caption": "Q2 2001"}
	}`, Schema, Cube, TimeDimension, TimeHierarchy, QuarterLevel)

	api.SetExplore(`{"[Zone].[Zone]": {"caption": "Zone"}}`, Schema, Cube, ZoneDimension)
	api.SetExplore(`[
		{"id": "[Zone].[Zone].[Country]", "caption": "Country", "list-properties": {}},
		{"id": "[Zone].[Zone].[Region]", "caption": "Region", "list-properties": {
			"name": {"caption": "Name", "type": "Standard"},
			"geom": {"caption": "Geometry", "type": "Geometry"}
		}}
	]`, Schema, Cube, ZoneDimension, ZoneHierarchy)
	api.SetExplore(`{
		"[Zone].[France]": {"caption": "France"},
		"[Zone].[Spain]": {"caption": "Spain"}
	}`, Schema, Cube, ZoneDimension, ZoneHierarchy, CountryLevel)
	api.SetExplore(`{
		"[Zone].[France].[Bretagne]": {"caption": "Bretagne", "name": "Breizh", "geom": "POINT (-3 48)"},
		"[Zone].[France].[Alsace]": {"caption": "Alsace", "name": "Elsass", "geom": "POINT (7.5 48.3)"}
	}`, Schema, Cube, ZoneDimension, ZoneHierarchy, CountryLevel, "[Zone].[France]")
	api.SetExplore(`{
		"[Zone].[Spain].[Galicia]": {"caption": "Galicia", "name": "Galiza", "geom": "POINT (-8 42.7)"}
	}`, Schema, Cube, ZoneDimension, ZoneHierarchy, CountryLevel, "[Zone].[Spain]")
	api.SetExplore(`{
		"[Zone].[France].[Bretagne]": {"caption": "Bretagne", "name": "Breizh", "geom": "POINT (-3 48)"},
		"[Zone].[France].[Alsace]": {"caption": "Alsace", "name": "Elsass", "geom": "POINT (7.5 48.3)"},
		"[Zone].[Spain].[Galicia]": {"caption": "Galicia", "name": "Galiza", "geom": "POINT (-8 42.7)"}
	}`, Schema, Cube, ZoneDimension, ZoneHierarchy, RegionLevel)

	api.SetExplore(`{"[Product].[Product]": {"caption": "Product"}}`, Schema, Cube, ProductDimension)
	api.SetExplore(`[{"id": "[Product].[Product].[Category]", "caption": "Category", "list-properties": {}}]`,
		Schema, Cube, ProductDimension, ProductHierarchy)
	api.SetExplore(`{
		"[Product].[Drink]": {"caption": "Drink"},
		"[Product].[Food]": {"caption": "Food"}
	}`, Schema, Cube, ProductDimension, ProductHierarchy, CategoryLevel)

	return api
}
