package flow

// DefaultStations returns the stock registry: ten stations per stage.
// Gardens, storage boxes and vending machines are fixed; delivery boxes are mobile.
func DefaultStations() []Station {
	fixed := func(id, name, desc string, stage Stage, order int, lat, lng float64) Station {
		return Station{ID: id, Name: name, Description: desc, Stage: stage, Order: order, FixedLocation: true, GPS: &GPS{Lat: lat, Lng: lng}}
	}
	mobile := func(id, name, desc string) Station {
		return Station{ID: id, Name: name, Description: desc, Stage: StageDelivery, Order: 3}
	}
	vending := func(id, name string, lat, lng float64) Station {
		s := fixed(id, name, "Self-service vending machine", StageClient, 4, lat, lng)
		s.Capacity = DefaultCapacity
		return s
	}

	return []Station{
		fixed("GS-01", "Tokyo Farm", "Urban rooftop garden in Shibuya", StageGarden, 1, 35.6595, 139.7004),
		fixed("GS-02", "Amsterdam Garden", "Canal-side greenhouse", StageGarden, 1, 52.3676, 4.9041),
		fixed("GS-03", "Sydney Organic", "Coastal organic farm", StageGarden, 1, -33.8688, 151.2093),
		fixed("GS-04", "São Paulo Horta", "Community urban garden", StageGarden, 1, -23.5505, -46.6333),
		fixed("GS-05", "Paris Jardin", "Rooftop vegetable garden", StageGarden, 1, 48.8566, 2.3522),
		fixed("GS-06", "Dubai Oasis", "Desert hydroponic farm", StageGarden, 1, 25.2048, 55.2708),
		fixed("GS-07", "NYC Urban Farm", "Brooklyn rooftop garden", StageGarden, 1, 40.6782, -73.9442),
		fixed("GS-08", "Singapore Sky", "Vertical farming tower", StageGarden, 1, 1.3521, 103.8198),
		fixed("GS-09", "Cape Town Vineyard", "Organic vegetable plot", StageGarden, 1, -33.9249, 18.4241),
		fixed("GS-10", "Mumbai Green", "Terrace garden collective", StageGarden, 1, 19.0760, 72.8777),

		fixed("SB-01", "London Cold Store", "Refrigerated warehouse", StageStorage, 2, 51.5074, -0.1278),
		fixed("SB-02", "Toronto Depot", "Climate-controlled facility", StageStorage, 2, 43.6532, -79.3832),
		fixed("SB-03", "Seoul Storage", "Smart cold chain hub", StageStorage, 2, 37.5665, 126.9780),
		fixed("SB-04", "Mexico City Bodega", "Fresh produce warehouse", StageStorage, 2, 19.4326, -99.1332),
		fixed("SB-05", "Barcelona Almacén", "Mediterranean storage", StageStorage, 2, 41.3851, 2.1734),
		fixed("SB-06", "Bangkok Hub", "Tropical cold storage", StageStorage, 2, 13.7563, 100.5018),
		fixed("SB-07", "Chicago Warehouse", "Midwest distribution center", StageStorage, 2, 41.8781, -87.6298),
		fixed("SB-08", "Melbourne Store", "Southern hemisphere depot", StageStorage, 2, -37.8136, 144.9631),
		fixed("SB-09", "Istanbul Depo", "Crossroads cold storage", StageStorage, 2, 41.0082, 28.9784),
		fixed("SB-10", "Buenos Aires Frío", "South American hub", StageStorage, 2, -34.6037, -58.3816),

		mobile("DB-01", "Express Van Tokyo", "Electric delivery vehicle"),
		mobile("DB-02", "Cool Truck Amsterdam", "Refrigerated truck"),
		mobile("DB-03", "Cargo Bike Paris", "Eco cargo bike fleet"),
		mobile("DB-04", "Speed Van NYC", "Express delivery van"),
		mobile("DB-05", "Fresh Truck London", "Standard delivery truck"),
		mobile("DB-06", "Mini Van Singapore", "Compact delivery vehicle"),
		mobile("DB-07", "Big Rig Chicago", "Large cargo truck"),
		mobile("DB-08", "Green Van Sydney", "Eco-friendly van"),
		mobile("DB-09", "Night Runner Seoul", "Night delivery vehicle"),
		mobile("DB-10", "Weekend Express Dubai", "Weekend delivery truck"),

		vending("CL-01", "VM Osaka Station", 34.6937, 135.5023),
		vending("CL-02", "VM Lyon Centre", 45.7640, 4.8357),
		vending("CL-03", "VM Vienna Mall", 48.2082, 16.3738),
		vending("CL-04", "VM Berlin Hbf", 52.5200, 13.4050),
		vending("CL-05", "VM SF Tech Park", 37.7749, -122.4194),
		vending("CL-06", "VM Milano Centrale", 45.4642, 9.1900),
		vending("CL-07", "VM London Bridge", 51.5055, -0.0910),
		vending("CL-08", "VM Geneva Airport", 46.2044, 6.1432),
		vending("CL-09", "VM Stockholm Central", 59.3293, 18.0686),
		vending("CL-10", "VM Hong Kong MTR", 22.3193, 114.1694),
	}
}

// DefaultProducts returns the nine product types, one per vending slot.
func DefaultProducts() []Product {
	return []Product{
		{ID: "TOM", Name: "Tomato", Glyph: "🍅", Slot: 1},
		{ID: "CAR", Name: "Carrot", Glyph: "🥕", Slot: 2},
		{ID: "LET", Name: "Lettuce", Glyph: "🥬", Slot: 3},
		{ID: "CUC", Name: "Cucumber", Glyph: "🥒", Slot: 4},
		{ID: "PEP", Name: "Pepper", Glyph: "🫑", Slot: 5},
		{ID: "SPI", Name: "Spinach", Glyph: "🥗", Slot: 6},
		{ID: "BRO", Name: "Broccoli", Glyph: "🥦", Slot: 7},
		{ID: "APL", Name: "Apple", Glyph: "🍎", Slot: 8},
		{ID: "ORG", Name: "Orange", Glyph: "🍊", Slot: 9},
	}
}
