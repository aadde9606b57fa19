package images

// ImageResponse is returned by the random image endpoints.
type ImageResponse struct {
	Message string `json:"message" validate:"required,httpurl,min=10,max=500"`
	Status  string `json:"status"`
}

// BreedListResponse maps each breed to its sub-breeds.
type BreedListResponse struct {
	Message map[string][]string `json:"message" validate:"required"`
	Status  string              `json:"status"`
}
