package model

// Amenity types returned by the places proxy.
const (
	PlaceHospital = "hospital"
	PlacePharmacy = "pharmacy"
	PlaceUnknown  = "unknown"
)

// Place is a hospital or pharmacy near the requested point.
type Place struct {
	ID      int64             `json:"id"`
	Name    string            `json:"name"`
	Address string            `json:"address"`
	Type    string            `json:"type"`
	Lat     float64           `json:"lat"`
	Lng     float64           `json:"lng"`
	RawTags map[string]string `json:"rawTags"`
}

// NearbyRequest carries raw values so that numeric strings are accepted.
type NearbyRequest struct {
	Lat    interface{} `json:"lat"`
	Lng    interface{} `json:"lng"`
	Radius interface{} `json:"radius"`
}

// NearbyQuery is a validated lookup.
type NearbyQuery struct {
	Lat    float64
	Lng    float64
	Radius float64
}

// NearbyResponse is the reshaped lookup result.
type NearbyResponse struct {
	Count  int     `json:"count"`
	Places []Place `json:"places"`
}
