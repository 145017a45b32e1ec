package models

// Address is a human-readable location resolved from coordinates.
type Address struct {
	DisplayName string            // DisplayName is the full formatted address.
	Components  map[string]string // Components maps a category (road, city, postcode, ...) to its value.
	Provider    string            // Provider is the name of the backend that resolved the address.
}
